package plan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/specialistvlad/bundlegrid/internal/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost records the order in which variants were registered.
type fakeHost struct {
	variants []*variant.Variant
	events   *[]string
}

func (h *fakeHost) Variants() []*variant.Variant { return h.variants }

func (h *fakeHost) RegisterVariant(_ context.Context, b *Builder, v *variant.Variant) error {
	*h.events = append(*h.events, "host:"+v.Name)
	return b.AddNode(&dag.Node{ID: "assemble." + v.Name})
}

// fakeCollaborator creates its tasks in a deferred hook, like the packager.
type fakeCollaborator struct {
	events       *[]string
	skipComplete bool
	async        bool
}

func (c *fakeCollaborator) Name() string { return "collaborator" }

func (c *fakeCollaborator) Apply(_ context.Context, b *Builder) error {
	return b.AfterConfigure(func(context.Context) error {
		publish := func() error {
			for _, v := range b.Variants() {
				id := "requirements." + v.Name
				if err := b.AddNode(&dag.Node{ID: id}); err != nil {
					return err
				}
				if err := b.Registry().Publish(TaskKey{Variant: v.Name, Role: RolePackageExtraction}, id); err != nil {
					return err
				}
			}
			if !c.skipComplete {
				b.Registry().Complete()
			}
			return nil
		}
		*c.events = append(*c.events, "collaborator:deferred")
		if c.async {
			go func() { _ = publish() }()
			return nil
		}
		return publish()
	})
}

func newHost(events *[]string, names ...string) *fakeHost {
	h := &fakeHost{events: events}
	for _, n := range names {
		h.variants = append(h.variants, variant.New(n, false))
	}
	return h
}

func TestBuilder_PhaseOrder(t *testing.T) {
	// --- Arrange ---
	var events []string
	b := NewBuilder(newHost(&events, "debug", "release"))
	require.NoError(t, b.Use(context.Background(), &fakeCollaborator{events: &events}))
	require.NoError(t, b.OnVariants(func(_ context.Context, v *variant.Variant) error {
		events = append(events, "first:"+v.Name)
		return nil
	}))
	require.NoError(t, b.OnVariants(func(_ context.Context, v *variant.Variant) error {
		events = append(events, "second:"+v.Name)
		return nil
	}))

	// --- Act ---
	g, err := b.Configure(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, g.Frozen())
	assert.Equal(t, []string{
		"host:debug", "first:debug", "second:debug",
		"host:release", "first:release", "second:release",
		"collaborator:deferred",
	}, events)
}

func TestBuilder_ResolvesAttachmentsAfterCompletion(t *testing.T) {
	var events []string
	b := NewBuilder(newHost(&events, "debug"))
	require.NoError(t, b.Use(context.Background(), &fakeCollaborator{events: &events, async: true}))
	require.NoError(t, b.AddNode(&dag.Node{ID: "prune.debug"}))
	require.NoError(t, b.OnVariants(func(_ context.Context, v *variant.Variant) error {
		return b.Attach(Attachment{
			Name: "extraction before prune",
			From: Key(v.Name, RolePackageExtraction),
			To:   NodeID("prune." + v.Name),
		})
	}))

	g, err := b.Configure(context.Background())

	require.NoError(t, err)
	deps, err := g.Dependencies("prune.debug")
	require.NoError(t, err)
	assert.Equal(t, []string{"requirements.debug"}, deps)
}

func TestBuilder_InputAttachmentCarriesOutputs(t *testing.T) {
	var events []string
	b := NewBuilder(newHost(&events, "debug"))
	require.NoError(t, b.Use(context.Background(), &fakeCollaborator{events: &events}))
	require.NoError(t, b.AddNode(&dag.Node{ID: "extract.apps", Outputs: []string{"src/apps"}}))
	require.NoError(t, b.AddNode(&dag.Node{ID: "extract.docs", Outputs: []string{"src/docs"}}))
	require.NoError(t, b.OnVariants(func(_ context.Context, v *variant.Variant) error {
		for _, id := range []string{"extract.apps", "extract.docs"} {
			if err := b.Attach(Attachment{
				Name:   "extraction feeds package",
				From:   NodeID(id),
				To:     Key(v.Name, RolePackageExtraction),
				Inputs: true,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	g, err := b.Configure(context.Background())

	require.NoError(t, err)
	n, ok := g.Node("requirements.debug")
	require.True(t, ok)
	assert.Equal(t, []string{"src/apps", "src/docs"}, n.Inputs)
	deps, err := g.Dependencies("requirements.debug")
	require.NoError(t, err)
	assert.Equal(t, []string{"extract.apps", "extract.docs"}, deps)
}

func TestBuilder_MissingKeyIsConfigurationFault(t *testing.T) {
	var events []string
	b := NewBuilder(newHost(&events, "debug"))
	require.NoError(t, b.Use(context.Background(), &fakeCollaborator{events: &events}))
	require.NoError(t, b.AddNode(&dag.Node{ID: "prune.debug"}))
	require.NoError(t, b.Attach(Attachment{
		Name: "payload after prune",
		From: NodeID("prune.debug"),
		To:   Key("debug", RolePayloadAssembly),
	}))

	_, err := b.Configure(context.Background())

	var aerr *AttachmentError
	require.ErrorAs(t, err, &aerr)
	assert.ErrorIs(t, err, ErrUnpublished)
	assert.Contains(t, err.Error(), "payload after prune")
}

func TestBuilder_WaitsForCompletionSignal(t *testing.T) {
	var events []string
	b := NewBuilder(newHost(&events, "debug"))
	b.CompletionTimeout = 20 * time.Millisecond
	require.NoError(t, b.Use(context.Background(), &fakeCollaborator{events: &events, skipComplete: true}))
	require.NoError(t, b.Attach(Attachment{
		Name: "x",
		From: Key("debug", RolePackageExtraction),
		To:   NodeID("assemble.debug"),
	}))

	_, err := b.Configure(context.Background())

	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestBuilder_WaitHonoursContext(t *testing.T) {
	var events []string
	b := NewBuilder(newHost(&events, "debug"))
	require.NoError(t, b.Use(context.Background(), &fakeCollaborator{events: &events, skipComplete: true}))
	require.NoError(t, b.Attach(Attachment{Name: "x", From: Key("debug", RolePackageExtraction), To: NodeID("assemble.debug")}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Configure(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuilder_NoWaitWithoutKeyedAttachments(t *testing.T) {
	var events []string
	b := NewBuilder(newHost(&events, "debug"))
	b.CompletionTimeout = time.Hour

	_, err := b.Configure(context.Background())

	require.NoError(t, err)
}

func TestBuilder_DuplicateNodeRejectedBeforeExecution(t *testing.T) {
	var events []string
	b := NewBuilder(newHost(&events, "debug"))
	require.NoError(t, b.OnVariants(func(_ context.Context, v *variant.Variant) error {
		return b.AddNode(&dag.Node{ID: "assemble." + v.Name})
	}))

	_, err := b.Configure(context.Background())

	assert.ErrorIs(t, err, dag.ErrDuplicateNode)
}

func TestBuilder_CycleRejectedAtFreeze(t *testing.T) {
	var events []string
	b := NewBuilder(newHost(&events))
	require.NoError(t, b.AddNode(&dag.Node{ID: "a"}))
	require.NoError(t, b.AddNode(&dag.Node{ID: "b"}))
	require.NoError(t, b.AddEdge("a", "b"))
	require.NoError(t, b.Attach(Attachment{Name: "back", From: NodeID("b"), To: NodeID("a")}))

	_, err := b.Configure(context.Background())

	assert.ErrorIs(t, err, dag.ErrCycle)
}

func TestBuilder_LateRegistrationsAreRejected(t *testing.T) {
	var events []string
	b := NewBuilder(newHost(&events, "debug"))
	var lateErr error
	require.NoError(t, b.AfterConfigure(func(context.Context) error {
		lateErr = b.OnVariants(func(context.Context, *variant.Variant) error { return nil })
		return nil
	}))

	_, err := b.Configure(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, lateErr, ErrTooLate)
	assert.ErrorIs(t, b.Attach(Attachment{}), ErrTooLate)
	assert.ErrorIs(t, b.Use(context.Background(), &fakeCollaborator{events: &events}), ErrTooLate)
}

func TestBuilder_PluginErrorIsWrapped(t *testing.T) {
	var events []string
	b := NewBuilder(newHost(&events))
	boom := errors.New("boom")

	err := b.Use(context.Background(), pluginFunc(func(context.Context, *Builder) error { return boom }))

	assert.ErrorIs(t, err, boom)
}

type pluginFunc func(context.Context, *Builder) error

func (f pluginFunc) Name() string { return "func" }
func (f pluginFunc) Apply(ctx context.Context, b *Builder) error { return f(ctx, b) }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	key := TaskKey{Variant: "debug", Role: RolePayloadAssembly}

	require.NoError(t, r.Publish(key, "requirementsAssets.debug"))
	assert.ErrorIs(t, r.Publish(key, "other"), ErrAlreadyPublished)

	id, ok := r.Lookup(key)
	assert.True(t, ok)
	assert.Equal(t, "requirementsAssets.debug", id)

	select {
	case <-r.Done():
		t.Fatal("registry must not be done before Complete")
	default:
	}
	r.Complete()
	r.Complete()
	<-r.Done()

	err := r.Publish(TaskKey{Variant: "release", Role: RolePayloadAssembly}, "x")
	assert.ErrorIs(t, err, ErrRegistryComplete)
	assert.Equal(t, []TaskKey{key}, r.Keys())
	assert.Equal(t, "payload-assembly[debug]", fmt.Sprint(key))
}
