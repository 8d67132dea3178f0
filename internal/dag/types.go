package dag

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome reports what a node's action actually did.
type Outcome int32

const (
	// OutcomeExecuted means the action performed its work.
	OutcomeExecuted Outcome = iota
	// OutcomeSkipped means the node's inputs were unchanged and no work was done.
	OutcomeSkipped
)

func (o Outcome) String() string {
	if o == OutcomeSkipped {
		return "skipped"
	}
	return "executed"
}

// State is the execution state of a node within one run.
type State int32

const (
	Registered State = iota
	Running
	Skipped
	Executed
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case Running:
		return "running"
	case Skipped:
		return "skipped"
	case Executed:
		return "executed"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Action is the unit of work attached to a node.
type Action func(ctx context.Context) (Outcome, error)

// Node is a single task in the graph. Exported fields are set at registration
// time and must not change once the node has been added to a Graph.
type Node struct {
	// ID uniquely identifies the node within a graph.
	ID string
	// Kind is the node's role, e.g. "fetch" or "prune". Used for logging.
	Kind string
	// Variant is the owning build variant, empty for shared nodes.
	Variant string

	// Inputs and Outputs are the declared file or directory paths. Params are
	// extra scalar inputs. Together they drive incremental skipping.
	Inputs  []string
	Outputs []string
	Params  []string
	// Incremental marks the node as eligible for fingerprint-based skipping.
	Incremental bool

	Action Action

	deps       map[string]*Node
	dependents map[string]*Node

	state    atomic.Int32
	depCount atomic.Int32
	settle   *sync.Once

	mu       sync.Mutex
	outcome  Outcome
	err      error
	started  time.Time
	finished time.Time
}

// State returns the node's current state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Err returns the error the node failed with, if any.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Outcome returns the outcome of the node's last successful execution.
func (n *Node) Outcome() Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.outcome
}

// transition moves the node from one state to another, refusing anything the
// state machine does not allow.
func (n *Node) transition(from, to State) error {
	if !allowed(from, to) {
		return &TransitionError{ID: n.ID, From: from, To: to}
	}
	if !n.state.CompareAndSwap(int32(from), int32(to)) {
		return &TransitionError{ID: n.ID, From: n.State(), To: to}
	}
	return nil
}

func allowed(from, to State) bool {
	switch from {
	case Registered:
		return to == Running || to == Failed
	case Running:
		return to == Skipped || to == Executed || to == Failed
	case Skipped, Executed:
		return to == Done
	default:
		return false
	}
}

func (n *Node) reset() {
	n.state.Store(int32(Registered))
	n.depCount.Store(0)
	n.settle = &sync.Once{}
	n.mu.Lock()
	n.outcome = OutcomeExecuted
	n.err = nil
	n.started = time.Time{}
	n.finished = time.Time{}
	n.mu.Unlock()
}
