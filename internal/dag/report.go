package dag

import "time"

// NodeReport summarizes how a node ended in the last run.
type NodeReport struct {
	ID       string
	Kind     string
	Variant  string
	State    State
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

func (n *Node) report() NodeReport {
	n.mu.Lock()
	defer n.mu.Unlock()

	rep := NodeReport{
		ID:      n.ID,
		Kind:    n.Kind,
		Variant: n.Variant,
		State:   State(n.state.Load()),
		Outcome: n.outcome,
		Err:     n.err,
	}
	if !n.started.IsZero() && !n.finished.IsZero() {
		rep.Duration = n.finished.Sub(n.started)
	}
	return rep
}
