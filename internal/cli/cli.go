package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/bundlegrid/internal/app"
	"github.com/specialistvlad/bundlegrid/internal/config"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

type globalFlags struct {
	root      string
	file      string
	vars      []string
	logLevel  string
	logFormat string
	workers   int
}

type buildFlags struct {
	variants        []string
	targets         []string
	versionCode     string
	signing         string
	fetchRetries    int
	progress        bool
	watch           bool
	healthcheckPort int
}

// Run executes the command line args against loader. Every returned error is
// an *ExitError.
func Run(ctx context.Context, outW io.Writer, args []string, loader config.Loader) error {
	root := newRootCommand(outW, loader)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Anything cobra reports itself is a usage problem.
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

func newRootCommand(outW io.Writer, loader config.Loader) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "bundlegrid",
		Short: "Fetch remote asset bundles and package them into build variants",
		Long: `bundlegrid fetches independently versioned asset bundles, extracts them into
the project and assembles the outputs of every build variant with a single
build-wide version code. Unchanged bundles are revalidated, never re-downloaded.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(outW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&g.root, "root", ".", "Project root directory.")
	pf.StringVarP(&g.file, "file", "f", "", "Build definition file or directory, relative to the root. Defaults to the root.")
	pf.StringArrayVar(&g.vars, "var", nil, "Set a build definition variable (name=value). Repeatable.")
	pf.StringVar(&g.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.IntVar(&g.workers, "workers", 0, "Number of concurrent workers for the executor. 0 uses one per CPU.")

	root.AddCommand(newBuildCommand(outW, loader, g), newCleanCommand(outW, loader, g))
	return root
}

func newBuildCommand(outW io.Writer, loader config.Loader, g *globalFlags) *cobra.Command {
	b := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch, extract and assemble every variant",
		Example: `  bundlegrid build --var explore_version=0.16.2
  bundlegrid build --variant release --version-code 42
  bundlegrid build --target extract.apps
  bundlegrid build --watch --healthcheck-port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := newConfig(g, b)
			if err != nil {
				return err
			}
			a := app.NewApp(outW, cfg, loader)
			if b.watch {
				return exitError(a.Watch(cmd.Context()))
			}
			return exitError(a.Build(cmd.Context()))
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&b.variants, "variant", nil, "Only build these variants.")
	f.StringArrayVar(&b.targets, "target", nil, "Only run this node and its dependencies. Repeatable.")
	f.StringVar(&b.versionCode, "version-code", "", "Override the time-derived version code.")
	f.StringVar(&b.signing, "signing", "", "Signing credentials file, overriding the build definition.")
	f.IntVar(&b.fetchRetries, "fetch-retries", 3, "Retries for transient bundle download failures.")
	f.BoolVar(&b.progress, "progress", false, "Show download progress bars.")
	f.BoolVar(&b.watch, "watch", false, "Rebuild whenever the build definition changes.")
	f.IntVar(&b.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server in watch mode. 0 is disabled.")
	return cmd
}

func newCleanCommand(outW io.Writer, loader config.Loader, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove cached bundles, extracted content and generated outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := newConfig(g, &buildFlags{})
			if err != nil {
				return err
			}
			return exitError(app.NewApp(outW, cfg, loader).Clean(cmd.Context()))
		},
	}
}

func newConfig(g *globalFlags, b *buildFlags) (*app.Config, error) {
	vars, err := parseVars(g.vars)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	cfg, err := app.NewConfig(app.Config{
		Root:            g.root,
		DefinitionPath:  g.file,
		Vars:            vars,
		Variants:        b.variants,
		Targets:         b.targets,
		VersionCode:     b.versionCode,
		SigningFile:     b.signing,
		WorkerCount:     g.workers,
		FetchRetries:    b.fetchRetries,
		Progress:        b.progress,
		HealthcheckPort: b.healthcheckPort,
		LogFormat:       g.logFormat,
		LogLevel:        g.logLevel,
	})
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return cfg, nil
}

func parseVars(raw []string) (map[string]string, error) {
	vars := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: expected name=value", kv)
		}
		vars[name] = value
	}
	return vars, nil
}

// exitError maps app errors onto exit codes.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	if app.IsConfigError(err) {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return &ExitError{Code: ExitFailure, Message: err.Error()}
}
