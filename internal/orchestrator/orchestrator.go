package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/bundlegrid/internal/archive"
	"github.com/specialistvlad/bundlegrid/internal/collect"
	"github.com/specialistvlad/bundlegrid/internal/config"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/specialistvlad/bundlegrid/internal/external"
	"github.com/specialistvlad/bundlegrid/internal/fetch"
	"github.com/specialistvlad/bundlegrid/internal/layout"
	"github.com/specialistvlad/bundlegrid/internal/plan"
	"github.com/specialistvlad/bundlegrid/internal/prune"
	"github.com/specialistvlad/bundlegrid/internal/variant"
	"github.com/specialistvlad/bundlegrid/internal/version"
)

// Orchestrator registers the bundle pipeline into a plan.Builder.
type Orchestrator struct {
	model    *config.Model
	layout   layout.Layout
	fetcher  *fetch.Fetcher
	resolver *version.Resolver
	pruner   *prune.Pruner
	code     version.Code

	fetchIDs   map[fetch.Identity]string
	extractIDs []string
	collector  *collect.Collector
	assetsSrc  string
}

var _ plan.Plugin = (*Orchestrator)(nil)

// New creates an orchestrator. code is the build-wide version code computed
// once for the invocation.
func New(model *config.Model, l layout.Layout, fetcher *fetch.Fetcher, runner *external.Runner, code version.Code) *Orchestrator {
	return &Orchestrator{
		model:    model,
		layout:   l,
		fetcher:  fetcher,
		resolver: &version.Resolver{Runner: runner, Command: model.VersionHelper.Command},
		pruner:   &prune.Pruner{Runner: runner, Command: model.PruneHelper.Command},
		code:     code,
		fetchIDs: make(map[fetch.Identity]string),
	}
}

func (o *Orchestrator) Name() string { return "orchestrator" }

// Apply runs pass 1.
func (o *Orchestrator) Apply(ctx context.Context, b *plan.Builder) error {
	logger := ctxlog.FromContext(ctx)

	for _, bundle := range o.model.Bundles {
		fid, dest, err := o.registerFetch(b, bundle)
		if err != nil {
			return err
		}
		if bundle.Assets {
			prefix := bundle.Prepend
			if prefix == "" {
				prefix = collect.DefaultPrefix
			}
			o.collector = &collect.Collector{Archive: dest, Prefix: prefix, Layout: o.layout}
			o.assetsSrc = fid
			continue
		}
		if err := o.registerExtract(b, bundle, fid, dest); err != nil {
			return err
		}
	}
	logger.Debug("Shared bundle nodes registered.", "fetch", len(o.fetchIDs), "extract", len(o.extractIDs))

	return b.OnVariants(func(ctx context.Context, v *variant.Variant) error {
		return o.configureVariant(ctx, b, v)
	})
}

// registerFetch returns the fetch node of the bundle's identity, creating it
// on first use.
func (o *Orchestrator) registerFetch(b *plan.Builder, bundle *config.Bundle) (string, string, error) {
	ident := fetch.Identity{Name: bundle.Name, Version: bundle.Version}
	dest := o.layout.BundleCache(bundle.Name, bundle.Version, cacheExt(bundle.URL))
	if id, ok := o.fetchIDs[ident]; ok {
		return id, dest, nil
	}

	req := fetch.Request{Identity: ident, URL: bundle.URL, Dest: dest}
	n := &dag.Node{
		ID:      fetchID(ident),
		Kind:    "fetch",
		Outputs: []string{dest},
		Params:  []string{bundle.URL},
		Action: func(ctx context.Context) (dag.Outcome, error) {
			res, err := o.fetcher.Fetch(ctx, req)
			if err != nil {
				return dag.OutcomeExecuted, err
			}
			if res.NotModified {
				return dag.OutcomeSkipped, nil
			}
			return dag.OutcomeExecuted, nil
		},
	}
	if err := b.AddNode(n); err != nil {
		return "", "", err
	}
	o.fetchIDs[ident] = n.ID
	return n.ID, dest, nil
}

func (o *Orchestrator) registerExtract(b *plan.Builder, bundle *config.Bundle, fid, src string) error {
	spec := archive.Spec{
		Target:        o.layout.Abs(bundle.Target),
		Rewrite:       rewriteFor(bundle),
		KeepEmptyDirs: bundle.KeepEmptyDirs,
	}
	n := &dag.Node{
		ID:          extractID(bundle.Name),
		Kind:        "extract",
		Inputs:      []string{src},
		Outputs:     []string{spec.Target},
		Params:      []string{spec.Rewrite.String(), fmt.Sprintf("keep_empty_dirs=%t", spec.KeepEmptyDirs)},
		Incremental: true,
		Action: func(ctx context.Context) (dag.Outcome, error) {
			_, err := archive.Extract(ctx, src, spec)
			return dag.OutcomeExecuted, err
		},
	}
	if err := b.AddNode(n); err != nil {
		return err
	}
	if err := b.AddEdge(fid, n.ID); err != nil {
		return err
	}
	o.extractIDs = append(o.extractIDs, n.ID)
	return nil
}

// configureVariant is the variant callback of pass 1. It also queues the
// pass 2 attachments for v.
func (o *Orchestrator) configureVariant(ctx context.Context, b *plan.Builder, v *variant.Variant) error {
	pkgRoot := o.layout.PackageRoot(v.Name)

	v.VersionCode = o.code
	// The helper reads installed package metadata from the requirements tree.
	v.VersionName = o.resolver.Lazily(o.code, filepath.Join(pkgRoot, "common"), o.layout.VersionRecord(v.Name))

	if o.collector != nil {
		if err := o.registerCollect(b, v); err != nil {
			return err
		}
	}

	versionNode := &dag.Node{
		ID:      versionID(v.Name),
		Kind:    "version",
		Variant: v.Name,
		Outputs: []string{o.layout.VersionRecord(v.Name)},
		Action: func(ctx context.Context) (dag.Outcome, error) {
			_, err := v.VersionName.Get(ctx)
			return dag.OutcomeExecuted, err
		},
	}
	report := prune.ReportPath(o.layout.BuildDir(), v.Name)
	pruneNode := &dag.Node{
		ID:          pruneID(v.Name),
		Kind:        "prune",
		Variant:     v.Name,
		Inputs:      []string{pkgRoot},
		Outputs:     []string{report},
		Params:      o.pruner.Command,
		Incremental: true,
		Action: func(ctx context.Context) (dag.Outcome, error) {
			_, err := o.pruner.Prune(ctx, pkgRoot, report)
			return dag.OutcomeExecuted, err
		},
	}
	for _, n := range []*dag.Node{versionNode, pruneNode} {
		if err := b.AddNode(n); err != nil {
			return err
		}
	}
	if err := b.AddEdge(versionNode.ID, AssembleID(v.Name)); err != nil {
		return err
	}

	extraction := plan.Key(v.Name, plan.RolePackageExtraction)
	attachments := make([]plan.Attachment, 0, len(o.extractIDs)+3)
	for _, id := range o.extractIDs {
		attachments = append(attachments, plan.Attachment{
			Name:   "bundle extraction feeds package extraction",
			From:   plan.NodeID(id),
			To:     extraction,
			Inputs: true,
		})
	}
	attachments = append(attachments,
		plan.Attachment{Name: "version after package extraction", From: extraction, To: plan.NodeID(versionNode.ID)},
		plan.Attachment{Name: "prune after package extraction", From: extraction, To: plan.NodeID(pruneNode.ID)},
		plan.Attachment{Name: "prune before payload assembly", From: plan.NodeID(pruneNode.ID), To: plan.Key(v.Name, plan.RolePayloadAssembly)},
	)
	for _, a := range attachments {
		if err := b.Attach(a); err != nil {
			return err
		}
	}

	ctxlog.FromContext(ctx).Debug("Variant configured.", "variant", v.Name, "versionCode", int64(o.code))
	return nil
}

func (o *Orchestrator) registerCollect(b *plan.Builder, v *variant.Variant) error {
	o.collector.Publish(v)
	n := &dag.Node{
		ID:          collectID(v.Name),
		Kind:        "collect",
		Variant:     v.Name,
		Inputs:      []string{o.collector.Archive},
		Outputs:     []string{o.collector.Dir(v.Name)},
		Params:      []string{o.collector.Prefix},
		Incremental: true,
		Action: func(ctx context.Context) (dag.Outcome, error) {
			_, err := o.collector.Collect(ctx, v.Name)
			return dag.OutcomeExecuted, err
		},
	}
	if err := b.AddNode(n); err != nil {
		return err
	}
	if err := b.AddEdge(o.assetsSrc, n.ID); err != nil {
		return err
	}
	return b.AddEdge(n.ID, AssembleID(v.Name))
}

func rewriteFor(b *config.Bundle) archive.Rewrite {
	switch {
	case b.StripComponents > 0:
		return archive.Strip(b.StripComponents)
	case b.Prepend != "":
		return archive.Prepend(b.Prepend)
	default:
		return archive.Identity()
	}
}

// cacheExt keeps the archive extension of the URL so the extractor can pick
// the format without sniffing.
func cacheExt(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	if strings.HasSuffix(strings.ToLower(p), ".tar.gz") {
		return ".tar.gz"
	}
	return strings.ToLower(path.Ext(p))
}
