package dag

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateNode is returned when a node ID is registered twice.
	ErrDuplicateNode = errors.New("duplicate node registration")
	// ErrCycle is returned when the graph contains a dependency cycle.
	ErrCycle = errors.New("dependency cycle")
	// ErrFrozen is returned when the graph is mutated after Freeze.
	ErrFrozen = errors.New("graph is frozen")
	// ErrNotFrozen is returned when a graph is executed before Freeze.
	ErrNotFrozen = errors.New("graph must be frozen before execution")
)

// NodeError attributes an action failure to the node that produced it.
type NodeError struct {
	ID  string
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.ID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// UpstreamError marks a node that never ran because a predecessor failed.
type UpstreamError struct {
	Upstream string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("skipped due to upstream failure of '%s'", e.Upstream)
}

// TransitionError reports a state change the state machine refused.
type TransitionError struct {
	ID   string
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %q: %s -> %s", e.ID, e.From, e.To)
}
