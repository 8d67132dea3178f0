package testutil

import (
	"testing"

	"github.com/specialistvlad/bundlegrid/internal/dag"
	"github.com/stretchr/testify/assert"
)

func findReport(reports []dag.NodeReport, id string) (dag.NodeReport, bool) {
	for _, r := range reports {
		if r.ID == id {
			return r, true
		}
	}
	return dag.NodeReport{}, false
}

// AssertOutcome checks that node id completed in the run with the given
// outcome.
func AssertOutcome(t *testing.T, reports []dag.NodeReport, id string, want dag.Outcome) {
	t.Helper()
	r, ok := findReport(reports, id)
	if !assert.True(t, ok, "node %s was not part of the run", id) {
		return
	}
	if assert.Equal(t, dag.Done, r.State, "node %s did not complete: %v", id, r.Err) {
		assert.Equal(t, want, r.Outcome, "unexpected outcome for node %s", id)
	}
}

// AssertNotCompleted checks that node id either was outside the run or did
// not reach Done.
func AssertNotCompleted(t *testing.T, reports []dag.NodeReport, id string) {
	t.Helper()
	if r, ok := findReport(reports, id); ok {
		assert.NotEqual(t, dag.Done, r.State, "node %s completed", id)
	}
}
