package version

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/external"
)

// Resolver runs the version helper for one variant.
type Resolver struct {
	Runner  *external.Runner
	Command []string
}

// Resolve invokes the helper against pkgDir and reads the record it writes to
// output. A non-zero exit is an external.ProcessError, a missing or invalid
// record a ParseError.
func (r *Resolver) Resolve(ctx context.Context, code Code, pkgDir, output string) (*Record, error) {
	logger := ctxlog.FromContext(ctx)

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("creating version output directory: %w", err)
	}
	// A stale record from an earlier run must not satisfy this one.
	if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale version record: %w", err)
	}

	err := r.Runner.Run(ctx, r.Command,
		"--version-code", code.String(),
		"--pkgdir", pkgDir,
		"--output", output,
	)
	if err != nil {
		return nil, err
	}

	rec, err := ReadRecord(output, code)
	if err != nil {
		return nil, err
	}
	logger.Info("🏷️  Resolved version.", "versionName", rec.VersionName, "versionCode", int64(rec.VersionCode))
	return rec, nil
}

// Lazily returns a Lazy record whose first Get runs the helper.
func (r *Resolver) Lazily(code Code, pkgDir, output string) *Lazy[Record] {
	return NewLazy(func(ctx context.Context) (Record, error) {
		rec, err := r.Resolve(ctx, code, pkgDir, output)
		if err != nil {
			return Record{}, err
		}
		return *rec, nil
	})
}
