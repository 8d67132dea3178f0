package orchestrator

import (
	"context"
	"fmt"

	"github.com/specialistvlad/bundlegrid/internal/config"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/specialistvlad/bundlegrid/internal/external"
	"github.com/specialistvlad/bundlegrid/internal/fetch"
	"github.com/specialistvlad/bundlegrid/internal/layout"
	"github.com/specialistvlad/bundlegrid/internal/packager"
	"github.com/specialistvlad/bundlegrid/internal/plan"
	"github.com/specialistvlad/bundlegrid/internal/signing"
	"github.com/specialistvlad/bundlegrid/internal/variant"
	"github.com/specialistvlad/bundlegrid/internal/version"
)

// Options are the inputs of one build invocation.
type Options struct {
	Model       *config.Model
	Layout      layout.Layout
	Fetcher     *fetch.Fetcher
	Runner      *external.Runner
	VersionCode version.Code
	Credentials *signing.Credentials
}

// Build is a configured, frozen build graph.
type Build struct {
	Graph    *dag.Graph
	Variants []*variant.Variant
}

// Plan configures the build graph: the orchestrator and the packager
// collaborator are applied, then every configuration phase runs.
func Plan(ctx context.Context, opts Options) (*Build, error) {
	logger := ctxlog.FromContext(ctx)

	host := &Host{Model: opts.Model, Layout: opts.Layout, Credentials: opts.Credentials}
	b := plan.NewBuilder(host)

	plugins := []plan.Plugin{
		New(opts.Model, opts.Layout, opts.Fetcher, opts.Runner, opts.VersionCode),
		&packager.Packager{
			SourceDir:    opts.Model.Packager.SourceDir,
			Requirements: opts.Model.Packager.Requirements,
			Layout:       opts.Layout,
		},
	}
	for _, p := range plugins {
		if err := b.Use(ctx, p); err != nil {
			return nil, err
		}
	}

	g, err := b.Configure(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("Build graph ready.", "nodes", g.Len(), "variants", len(b.Variants()))
	return &Build{Graph: g, Variants: b.Variants()}, nil
}

// Targets maps variant names and explicit node IDs to executor targets.
// Unknown variants are an error; node IDs are checked by the executor.
func Targets(model *config.Model, variants, nodes []string) ([]string, error) {
	targets := make([]string, 0, len(variants)+len(nodes))
	for _, name := range variants {
		if _, ok := model.Variant(name); !ok {
			return nil, fmt.Errorf("unknown variant %q", name)
		}
		targets = append(targets, AssembleID(name))
	}
	return append(targets, nodes...), nil
}
