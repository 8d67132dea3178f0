package orchestrator

import (
	"context"

	"github.com/specialistvlad/bundlegrid/internal/config"
	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/specialistvlad/bundlegrid/internal/layout"
	"github.com/specialistvlad/bundlegrid/internal/plan"
	"github.com/specialistvlad/bundlegrid/internal/signing"
	"github.com/specialistvlad/bundlegrid/internal/variant"
)

// Host is the packaging platform: it enumerates the configured variants and
// registers the output assembly of each one.
type Host struct {
	Model       *config.Model
	Layout      layout.Layout
	Credentials *signing.Credentials
}

var _ plan.Host = (*Host)(nil)

// Variants creates a fresh variant per definition. Variants live for one
// invocation only.
func (h *Host) Variants() []*variant.Variant {
	out := make([]*variant.Variant, 0, len(h.Model.Variants))
	for _, def := range h.Model.Variants {
		v := variant.New(def.Name, def.Signing)
		if def.Signing {
			v.Credentials = h.Credentials
		}
		out = append(out, v)
	}
	return out
}

// RegisterVariant adds assemble.<variant>, which runs after the packager's
// payload assembly.
func (h *Host) RegisterVariant(_ context.Context, b *plan.Builder, v *variant.Variant) error {
	n := &dag.Node{
		ID:      AssembleID(v.Name),
		Kind:    "assemble",
		Variant: v.Name,
		Outputs: []string{h.Layout.OutputMetadata(v.Name)},
		Action: func(ctx context.Context) (dag.Outcome, error) {
			_, err := variant.Assemble(ctx, v, h.Layout)
			return dag.OutcomeExecuted, err
		},
	}
	if err := b.AddNode(n); err != nil {
		return err
	}
	return b.Attach(plan.Attachment{
		Name: "payload before output assembly",
		From: plan.Key(v.Name, plan.RolePayloadAssembly),
		To:   plan.NodeID(n.ID),
	})
}
