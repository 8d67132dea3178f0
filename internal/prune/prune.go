// Package prune runs the prune helper over a variant's package root.
package prune

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/external"
)

// ReportPath returns where the removal report of variant is written.
func ReportPath(buildDir, variant string) string {
	return filepath.Join(buildDir, "outputs", "logs", fmt.Sprintf("prune-%s-report.txt", variant))
}

// Pruner deletes files not needed at runtime from a package root. The work is
// done in place by the helper, so the pruner declares no outputs.
type Pruner struct {
	Runner  *external.Runner
	Command []string
}

// Prune runs the helper against pkgRoot and returns the paths it reports as
// removed.
func (p *Pruner) Prune(ctx context.Context, pkgRoot, report string) ([]string, error) {
	logger := ctxlog.FromContext(ctx)

	if err := os.MkdirAll(filepath.Dir(report), 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	if err := p.Runner.Run(ctx, p.Command, "--pkgroot", pkgRoot, "--report", report); err != nil {
		return nil, err
	}

	removed, err := ReadReport(report)
	if err != nil {
		return nil, err
	}
	logger.Info("✂️  Pruned package root.", "removed", len(removed), "report", report)
	return removed, nil
}

// ReadReport returns the non-blank lines of a removal report.
func ReadReport(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading prune report: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading prune report: %w", err)
	}
	return lines, nil
}
