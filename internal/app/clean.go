package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/specialistvlad/bundlegrid/internal/orchestrator"
)

// Clean removes cached bundles, extraction targets and generated state.
func (a *App) Clean(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	model, l, err := a.load(ctx)
	if err != nil {
		return err
	}
	g, err := orchestrator.Clean(model, l)
	if err != nil {
		return &ConfigError{Err: fmt.Errorf("failed to configure clean graph: %w", err)}
	}

	a.logger.Info("🧹 Cleaning...", "root", l.Root)
	return a.execute(ctx, dag.NewExecutor(g, a.config.WorkerCount, nil), nil)
}
