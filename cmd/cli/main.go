package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/bundlegrid/internal/cli"
	"github.com/specialistvlad/bundlegrid/internal/hcl_adapter"
)

// main is the entrypoint for the bundlegrid application.
func main() {
	// Use a minimal logger until the app configures its own.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the concrete HCL loader into the CLI.
func run(ctx context.Context, outW io.Writer, args []string) error {
	return cli.Run(ctx, outW, args, hcl_adapter.NewLoader())
}
