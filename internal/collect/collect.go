// Package collect exposes the fixed-name assets bundle as a generated asset
// directory of each variant.
package collect

import (
	"context"
	"fmt"

	"github.com/specialistvlad/bundlegrid/internal/archive"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/layout"
	"github.com/specialistvlad/bundlegrid/internal/variant"
)

// DefaultPrefix is the segment the packaging stage expects assets under.
const DefaultPrefix = "loadingScreen"

// Collector populates per-variant asset directories from one archive.
type Collector struct {
	Archive string
	Prefix  string
	Layout  layout.Layout
}

// Dir returns the output directory of v.
func (c *Collector) Dir(v string) string {
	return c.Layout.GeneratedAssets(v)
}

// Publish registers the output directory as a generated input of v. It runs
// during configuration of every invocation, whether or not Collect later
// executes.
func (c *Collector) Publish(v *variant.Variant) {
	v.AddGeneratedAssets(c.Dir(v.Name))
}

// Collect clears the output directory of v and fills it from the archive.
func (c *Collector) Collect(ctx context.Context, v string) (*archive.Stats, error) {
	prefix := c.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	stats, err := archive.Extract(ctx, c.Archive, archive.Spec{
		Target:  c.Dir(v),
		Rewrite: archive.Prepend(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("collecting assets for %s: %w", v, err)
	}
	ctxlog.FromContext(ctx).Debug("Collected generated assets.", "variant", v, "files", stats.Files)
	return stats, nil
}
