package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/specialistvlad/bundlegrid/internal/external"
	"github.com/specialistvlad/bundlegrid/internal/fetch"
	"github.com/specialistvlad/bundlegrid/internal/orchestrator"
	"github.com/specialistvlad/bundlegrid/internal/signing"
	"github.com/specialistvlad/bundlegrid/internal/state"
	"github.com/specialistvlad/bundlegrid/internal/version"
)

// Build runs one invocation: load, configure, execute, report. Every call
// creates fresh variants and a fresh version code.
func (a *App) Build(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Build method started.")

	model, l, err := a.load(ctx)
	if err != nil {
		return err
	}

	code, err := version.NewCode(a.config.VersionCode, a.now)
	if err != nil {
		return &ConfigError{Err: err}
	}
	credsPath := model.SigningCredentials
	if a.config.SigningFile != "" {
		credsPath = a.config.SigningFile
	}
	if credsPath != "" {
		credsPath = l.Abs(credsPath)
	}
	creds, err := signing.Load(ctx, credsPath)
	if err != nil {
		return &ConfigError{Err: err}
	}

	fetchOpts := []fetch.Option{fetch.WithRetry(fetch.RetryPolicy{
		MaxRetries:      uint64(a.config.FetchRetries),
		InitialInterval: fetch.DefaultRetryPolicy.InitialInterval,
		MaxInterval:     fetch.DefaultRetryPolicy.MaxInterval,
	})}
	if a.config.Progress {
		fetchOpts = append(fetchOpts, fetch.WithProgress(a.outW))
	}

	b, err := orchestrator.Plan(ctx, orchestrator.Options{
		Model:       model,
		Layout:      l,
		Fetcher:     fetch.New(fetchOpts...),
		Runner:      &external.Runner{Dir: l.Root},
		VersionCode: code,
		Credentials: creds,
	})
	if err != nil {
		return &ConfigError{Err: fmt.Errorf("failed to configure build graph: %w", err)}
	}
	targets, err := orchestrator.Targets(model, a.config.Variants, a.config.Targets)
	if err != nil {
		return &ConfigError{Err: err}
	}

	store, err := state.Open(l.StateFile())
	if err != nil {
		return err
	}

	a.logger.Info("🚀 Starting concurrent execution...", "versionCode", code.String(), "variants", len(b.Variants), "signing", creds.String())
	return a.execute(ctx, dag.NewExecutor(b.Graph, a.config.WorkerCount, store), targets)
}

func (a *App) execute(ctx context.Context, exec *dag.Executor, targets []string) error {
	runErr := exec.Run(ctx, targets...)
	summary := printReport(a.outW, exec.Report())
	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	a.logger.Info("🏁 Execution finished.", "executed", summary.Executed, "skipped", summary.Skipped)
	return nil
}
