package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/bundlegrid/internal/config"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/specialistvlad/bundlegrid/internal/fsutil"
	"github.com/specialistvlad/bundlegrid/internal/layout"
	"golang.org/x/sync/errgroup"
)

// Clean returns a frozen graph that removes every cached bundle, every
// extraction target and all generated build state. It has no dependency on
// the production graph.
func Clean(model *config.Model, l layout.Layout) (*dag.Graph, error) {
	g := dag.New()

	names := make([]string, 0, len(model.Bundles))
	for _, b := range model.Bundles {
		names = append(names, b.Name)
	}
	for _, b := range model.Bundles {
		paths, err := cachedVersions(l, b.Name, names)
		if err != nil {
			return nil, err
		}
		if b.Target != "" {
			paths = append(paths, l.Abs(b.Target))
		}
		if err := g.AddNode(&dag.Node{
			ID:     cleanID(b.Name),
			Kind:   "clean",
			Action: removeAll(paths),
		}); err != nil {
			return nil, err
		}
	}

	if err := g.AddNode(&dag.Node{
		ID:     cleanBuildID,
		Kind:   "clean",
		Action: removeAll([]string{l.BuildDir(), l.StateFile()}),
	}); err != nil {
		return nil, err
	}

	if err := g.Freeze(); err != nil {
		return nil, err
	}
	return g, nil
}

// removeAll deletes paths concurrently. Missing paths are not an error.
func removeAll(paths []string) dag.Action {
	return func(ctx context.Context) (dag.Outcome, error) {
		logger := ctxlog.FromContext(ctx)
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(4)
		for _, p := range paths {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				files, err := fsutil.CountEntries(p)
				if err != nil {
					return fmt.Errorf("inspecting %s: %w", p, err)
				}
				if err := os.RemoveAll(p); err != nil {
					return fmt.Errorf("removing %s: %w", p, err)
				}
				logger.Debug("Removed.", "path", p, "files", files)
				return nil
			})
		}
		return dag.OutcomeExecuted, eg.Wait()
	}
}

// cachedVersions returns every cache entry of bundle, whatever its version,
// together with its revalidation metadata. Entries are named
// <bundle>-<version><ext>; an entry of another bundle whose name extends
// bundle with "-" (apps-2 for apps) is never claimed.
func cachedVersions(l layout.Layout, bundle string, bundles []string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(l.CacheDir(), bundle+"-*"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range matches {
		base := filepath.Base(m)
		if claimedByOther(base, bundle, bundles) {
			continue
		}
		rest := strings.TrimPrefix(base, bundle+"-")
		rest = strings.TrimPrefix(rest, "v")
		if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
			out = append(out, m)
		}
	}
	return out, nil
}

func claimedByOther(base, bundle string, bundles []string) bool {
	for _, other := range bundles {
		if other != bundle && strings.HasPrefix(other, bundle+"-") && strings.HasPrefix(base, other+"-") {
			return true
		}
	}
	return false
}
