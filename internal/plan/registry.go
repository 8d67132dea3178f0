package plan

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Role names a task a collaborator provides for every variant.
type Role string

const (
	// RolePackageExtraction populates a variant's package root.
	RolePackageExtraction Role = "package-extraction"
	// RolePayloadAssembly bundles a variant's package root into its payload.
	RolePayloadAssembly Role = "payload-assembly"
)

// TaskKey identifies a collaborator task.
type TaskKey struct {
	Variant string
	Role    Role
}

func (k TaskKey) String() string {
	return fmt.Sprintf("%s[%s]", k.Role, k.Variant)
}

var (
	// ErrAlreadyPublished is returned when a key is published twice.
	ErrAlreadyPublished = errors.New("task key already published")
	// ErrRegistryComplete is returned when publishing after Complete.
	ErrRegistryComplete = errors.New("registry already complete")
)

// Registry maps collaborator task keys to node IDs. A collaborator publishes
// every task it creates and then calls Complete exactly once.
type Registry struct {
	mu       sync.Mutex
	tasks    map[TaskKey]string
	done     chan struct{}
	complete bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[TaskKey]string),
		done:  make(chan struct{}),
	}
}

// Publish records the node that provides key.
func (r *Registry) Publish(key TaskKey, nodeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete {
		return fmt.Errorf("publishing %s: %w", key, ErrRegistryComplete)
	}
	if prev, ok := r.tasks[key]; ok {
		return fmt.Errorf("publishing %s as %q: %w (held by %q)", key, nodeID, ErrAlreadyPublished, prev)
	}
	r.tasks[key] = nodeID
	return nil
}

// Lookup returns the node published under key.
func (r *Registry) Lookup(key TaskKey) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.tasks[key]
	return id, ok
}

// Complete signals that no further keys will be published. Calling it more
// than once has no effect.
func (r *Registry) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.complete {
		r.complete = true
		close(r.done)
	}
}

// Done is closed once Complete has been called.
func (r *Registry) Done() <-chan struct{} {
	return r.done
}

// Keys returns every published key in a stable order.
func (r *Registry) Keys() []TaskKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]TaskKey, 0, len(r.tasks))
	for k := range r.tasks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Variant != keys[j].Variant {
			return keys[i].Variant < keys[j].Variant
		}
		return keys[i].Role < keys[j].Role
	})
	return keys
}
