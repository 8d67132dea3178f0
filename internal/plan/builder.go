package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/specialistvlad/bundlegrid/internal/variant"
)

// DefaultCompletionTimeout bounds the wait for the collaborator's completion
// signal.
const DefaultCompletionTimeout = 30 * time.Second

var (
	// ErrTooLate is returned when a registration arrives after the phase that
	// consumes it has run.
	ErrTooLate = errors.New("registration after its phase has run")
	// ErrIncomplete is returned when the collaborator never signals completion.
	ErrIncomplete = errors.New("collaborator did not signal completion")
)

// Plugin contributes nodes and callbacks to a build.
type Plugin interface {
	Name() string
	Apply(ctx context.Context, b *Builder) error
}

// Host is the build platform. It defines the variants and registers the
// output assembly of each one.
type Host interface {
	Variants() []*variant.Variant
	RegisterVariant(ctx context.Context, b *Builder, v *variant.Variant) error
}

type phase int

const (
	phaseImmediate phase = iota
	phaseVariants
	phaseDeferred
	phaseFinalize
	phaseFrozen
)

// Builder assembles a graph across the configuration phases.
type Builder struct {
	graph    *dag.Graph
	registry *Registry
	host     Host

	phase          phase
	variants       []*variant.Variant
	onVariants     []func(context.Context, *variant.Variant) error
	afterConfigure []func(context.Context) error
	attachments    []Attachment

	// CompletionTimeout overrides DefaultCompletionTimeout when positive.
	CompletionTimeout time.Duration
}

// NewBuilder creates a builder for host.
func NewBuilder(host Host) *Builder {
	return &Builder{
		graph:    dag.New(),
		registry: NewRegistry(),
		host:     host,
	}
}

// Graph returns the graph under construction.
func (b *Builder) Graph() *dag.Graph { return b.graph }

// Registry returns the collaborator task registry.
func (b *Builder) Registry() *Registry { return b.registry }

// Variants returns the variants enumerated so far.
func (b *Builder) Variants() []*variant.Variant { return b.variants }

// Use applies a plugin's immediate registrations.
func (b *Builder) Use(ctx context.Context, p Plugin) error {
	if b.phase != phaseImmediate {
		return fmt.Errorf("applying plugin %s: %w", p.Name(), ErrTooLate)
	}
	ctxlog.FromContext(ctx).Debug("Applying plugin.", "plugin", p.Name())
	if err := p.Apply(ctx, b); err != nil {
		return fmt.Errorf("applying plugin %s: %w", p.Name(), err)
	}
	return nil
}

// AddNode registers a node.
func (b *Builder) AddNode(n *dag.Node) error {
	return b.graph.AddNode(n)
}

// AddEdge adds an edge between two registered nodes.
func (b *Builder) AddEdge(from, to string) error {
	return b.graph.AddEdge(from, to)
}

// OnVariants registers fn to run once per variant during enumeration.
func (b *Builder) OnVariants(fn func(context.Context, *variant.Variant) error) error {
	if b.phase > phaseImmediate {
		return fmt.Errorf("variant callback: %w", ErrTooLate)
	}
	b.onVariants = append(b.onVariants, fn)
	return nil
}

// AfterConfigure registers fn to run after variant enumeration.
func (b *Builder) AfterConfigure(fn func(context.Context) error) error {
	if b.phase > phaseVariants {
		return fmt.Errorf("deferred hook: %w", ErrTooLate)
	}
	b.afterConfigure = append(b.afterConfigure, fn)
	return nil
}

// Attach queues an edge that is resolved during finalization.
func (b *Builder) Attach(a Attachment) error {
	if b.phase >= phaseFinalize {
		return fmt.Errorf("attachment %s: %w", a, ErrTooLate)
	}
	b.attachments = append(b.attachments, a)
	return nil
}

// Configure runs the remaining phases and returns the frozen graph.
func (b *Builder) Configure(ctx context.Context) (*dag.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	b.phase = phaseVariants
	for _, v := range b.host.Variants() {
		b.variants = append(b.variants, v)
		if err := b.host.RegisterVariant(ctx, b, v); err != nil {
			return nil, fmt.Errorf("registering variant %s: %w", v.Name, err)
		}
		for _, fn := range b.onVariants {
			if err := fn(ctx, v); err != nil {
				return nil, fmt.Errorf("configuring variant %s: %w", v.Name, err)
			}
		}
	}
	logger.Debug("Variant enumeration complete.", "variants", len(b.variants))

	b.phase = phaseDeferred
	for _, fn := range b.afterConfigure {
		if err := fn(ctx); err != nil {
			return nil, fmt.Errorf("deferred configuration: %w", err)
		}
	}

	b.phase = phaseFinalize
	if err := b.awaitCompletion(ctx); err != nil {
		return nil, err
	}
	if err := b.resolveAttachments(ctx); err != nil {
		return nil, err
	}

	if err := b.graph.Freeze(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	b.phase = phaseFrozen
	logger.Debug("Graph configured.", "nodes", b.graph.Len(), "attachments", len(b.attachments))
	return b.graph, nil
}

// awaitCompletion blocks until the registry is complete. It returns at once
// when no attachment depends on the registry.
func (b *Builder) awaitCompletion(ctx context.Context) error {
	needed := false
	for _, a := range b.attachments {
		if a.From.key != nil || a.To.key != nil {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}

	timeout := b.CompletionTimeout
	if timeout <= 0 {
		timeout = DefaultCompletionTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.registry.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("waiting %s: %w", timeout, ErrIncomplete)
	}
}

func (b *Builder) resolveAttachments(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	var errs []error
	for _, a := range b.attachments {
		from, err := a.From.resolve(b.registry)
		if err != nil {
			errs = append(errs, &AttachmentError{Attachment: a, Err: err})
			continue
		}
		to, err := a.To.resolve(b.registry)
		if err != nil {
			errs = append(errs, &AttachmentError{Attachment: a, Err: err})
			continue
		}
		if err := b.graph.AddEdge(from, to); err != nil {
			errs = append(errs, &AttachmentError{Attachment: a, Err: err})
			continue
		}
		if a.Inputs {
			src, _ := b.graph.Node(from)
			if err := b.graph.AddInputs(to, src.Outputs...); err != nil {
				errs = append(errs, &AttachmentError{Attachment: a, Err: err})
				continue
			}
		}
		logger.Debug("Attachment resolved.", "name", a.Name, "from", from, "to", to)
	}
	return errors.Join(errs...)
}
