// Package packager is the embedded-runtime packager collaborator. It creates
// its per-variant tasks in a deferred hook and publishes them into the plan
// registry, so the orchestrator can only attach to them after completion.
package packager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/bundlegrid/internal/archive"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/specialistvlad/bundlegrid/internal/fsutil"
	"github.com/specialistvlad/bundlegrid/internal/layout"
	"github.com/specialistvlad/bundlegrid/internal/plan"
)

// Node ID prefixes of the packager's tasks.
const (
	RequirementsPrefix       = "requirements."
	RequirementsAssetsPrefix = "requirementsAssets."
)

// Packager populates each variant's package root and zips it into the
// variant's payload.
type Packager struct {
	// SourceDir is copied into the package root's app/ directory.
	SourceDir string
	// Requirements are archives extracted into the package root's common/
	// directory, in order.
	Requirements []string
	Layout       layout.Layout
}

var _ plan.Plugin = (*Packager)(nil)

func (p *Packager) Name() string { return "packager" }

// Apply defers all task creation until variants are known.
func (p *Packager) Apply(_ context.Context, b *plan.Builder) error {
	return b.AfterConfigure(func(ctx context.Context) error {
		for _, v := range b.Variants() {
			if err := p.register(b, v.Name); err != nil {
				return err
			}
		}
		b.Registry().Complete()
		ctxlog.FromContext(ctx).Debug("Packager tasks published.", "variants", len(b.Variants()))
		return nil
	})
}

func (p *Packager) register(b *plan.Builder, v string) error {
	pkgRoot := p.Layout.PackageRoot(v)
	payload := p.Layout.Payload(v)

	inputs := []string{p.Layout.Abs(p.SourceDir)}
	for _, r := range p.Requirements {
		inputs = append(inputs, p.Layout.Abs(r))
	}
	extraction := &dag.Node{
		ID:          RequirementsPrefix + v,
		Kind:        "requirements",
		Variant:     v,
		Inputs:      inputs,
		Outputs:     []string{pkgRoot},
		Incremental: true,
		Action: func(ctx context.Context) (dag.Outcome, error) {
			return dag.OutcomeExecuted, p.Populate(ctx, v)
		},
	}
	assembly := &dag.Node{
		ID:          RequirementsAssetsPrefix + v,
		Kind:        "requirementsAssets",
		Variant:     v,
		Inputs:      []string{pkgRoot},
		Outputs:     []string{payload},
		Incremental: true,
		Action: func(ctx context.Context) (dag.Outcome, error) {
			n, err := archive.WriteZip(ctx, pkgRoot, payload)
			if err != nil {
				return dag.OutcomeExecuted, err
			}
			ctxlog.FromContext(ctx).Info("🗜️  Payload assembled.", "files", n, "path", p.Layout.Rel(payload))
			return dag.OutcomeExecuted, nil
		},
	}

	for _, n := range []*dag.Node{extraction, assembly} {
		if err := b.AddNode(n); err != nil {
			return err
		}
	}
	if err := b.AddEdge(extraction.ID, assembly.ID); err != nil {
		return err
	}
	if err := b.Registry().Publish(plan.TaskKey{Variant: v, Role: plan.RolePackageExtraction}, extraction.ID); err != nil {
		return err
	}
	return b.Registry().Publish(plan.TaskKey{Variant: v, Role: plan.RolePayloadAssembly}, assembly.ID)
}

// Populate clears the package root of v and fills common/ from the
// requirement archives and app/ from the source tree.
func (p *Packager) Populate(ctx context.Context, v string) error {
	pkgRoot := p.Layout.PackageRoot(v)
	if err := fsutil.ResetDir(pkgRoot); err != nil {
		return fmt.Errorf("clearing package root: %w", err)
	}

	common := filepath.Join(pkgRoot, "common")
	if err := os.MkdirAll(common, 0o755); err != nil {
		return fmt.Errorf("creating requirements directory: %w", err)
	}
	for _, r := range p.Requirements {
		if _, err := archive.Extract(ctx, p.Layout.Abs(r), archive.Spec{Target: common, Merge: true}); err != nil {
			return fmt.Errorf("extracting requirement %s: %w", r, err)
		}
	}

	n, err := fsutil.CopyTree(p.Layout.Abs(p.SourceDir), filepath.Join(pkgRoot, "app"))
	if err != nil {
		return fmt.Errorf("copying application sources: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Package root populated.", "requirements", len(p.Requirements), "app_files", n)
	return nil
}
