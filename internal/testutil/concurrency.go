package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/bundlegrid/internal/dag"
)

// Recorder wraps node actions and records when each one ran. It is used to
// assert ordering between nodes that have no observable data dependency.
type Recorder struct {
	mu      sync.Mutex
	records map[string]*ExecutionRecord
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{records: make(map[string]*ExecutionRecord)}
}

// Wrap replaces the action of every node in g with one that records its
// start and end time around the original action. It must be called before
// the graph is executed.
func (r *Recorder) Wrap(g *dag.Graph) {
	for _, n := range g.Nodes() {
		id, inner := n.ID, n.Action
		n.Action = func(ctx context.Context) (dag.Outcome, error) {
			start := time.Now()
			var (
				out dag.Outcome
				err error
			)
			if inner != nil {
				out, err = inner(ctx)
			}
			r.mu.Lock()
			r.records[id] = &ExecutionRecord{Start: start, End: time.Now()}
			r.mu.Unlock()
			return out, err
		}
	}
}

// Record returns the execution record of id, or nil if it never ran.
func (r *Recorder) Record(id string) *ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id]
}
