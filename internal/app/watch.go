package app

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/watch"
)

// Watch builds once, then rebuilds whenever a build definition file changes,
// until ctx is cancelled. Build failures are logged and do not stop watching;
// only a broken watcher does.
func (a *App) Watch(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	status := &buildStatus{}
	stop := a.startHealthcheckServer(a.config.HealthcheckPort, status)
	defer stop()

	rebuild := func(ctx context.Context) {
		err := a.Build(ctx)
		status.set(err)
		if err != nil && ctx.Err() == nil {
			a.logger.Error("❌ Build failed, waiting for changes.", "error", err)
		}
	}

	defPath := a.config.DefinitionPath
	if defPath == "" {
		defPath = a.config.Root
	} else if !filepath.IsAbs(defPath) {
		defPath = filepath.Join(a.config.Root, defPath)
	}
	w, err := watch.New(watch.Config{Paths: []string{defPath}, Patterns: []string{"*.hcl"}})
	if err != nil {
		return err
	}
	defer w.Close()
	rebuild(ctx)

	a.logger.Info("👀 Watching build definition for changes.", "path", defPath)
	err = w.Run(ctx, func(ctx context.Context, changed []string) {
		a.logger.Info("🔁 Build definition changed, rebuilding.", "files", changed)
		rebuild(ctx)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
