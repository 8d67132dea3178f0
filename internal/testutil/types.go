package testutil

import "time"

// ExecutionRecord holds the start and end times of a single node's action.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Before reports whether r finished no later than other started.
func (r *ExecutionRecord) Before(other *ExecutionRecord) bool {
	return r != nil && other != nil && !r.End.After(other.Start)
}
