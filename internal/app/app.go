package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/specialistvlad/bundlegrid/internal/config"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/layout"
)

// ConfigError marks a failure that happened before any task ran: an invalid
// build definition, variables, credentials or graph wiring.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is a configuration failure.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// App runs invocations over one project.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	loader config.Loader
	now    func() time.Time
}

// NewApp creates an App with its own logger writing to outW.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")
	return &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		loader: loader,
		now:    time.Now,
	}
}

// load reads and validates the build definition.
func (a *App) load(ctx context.Context) (*config.Model, layout.Layout, error) {
	root, err := filepath.Abs(a.config.Root)
	if err != nil {
		return nil, layout.Layout{}, &ConfigError{Err: err}
	}
	l := layout.New(root)
	defPath := root
	if a.config.DefinitionPath != "" {
		defPath = l.Abs(a.config.DefinitionPath)
	}

	model, err := a.loader.Load(ctx, a.config.Vars, defPath)
	if err != nil {
		return nil, layout.Layout{}, &ConfigError{Err: fmt.Errorf("failed to load build definition: %w", err)}
	}
	ctxlog.FromContext(ctx).Debug("Build definition loaded.", "bundles", len(model.Bundles), "variants", len(model.Variants))
	return model, l, nil
}
