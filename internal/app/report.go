package app

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/specialistvlad/bundlegrid/internal/dag"
)

// Summary counts how the nodes of a run ended.
type Summary struct {
	Executed int
	Skipped  int
	Failed   int
}

// printReport writes one row per node of the last run and returns the totals.
func printReport(w io.Writer, reports []dag.NodeReport) Summary {
	var s Summary
	if len(reports) == 0 {
		return s
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tSTATE\tOUTCOME\tDURATION")
	for _, r := range reports {
		outcome := "-"
		switch r.State {
		case dag.Done:
			outcome = r.Outcome.String()
			if r.Outcome == dag.OutcomeSkipped {
				s.Skipped++
			} else {
				s.Executed++
			}
		case dag.Failed:
			s.Failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.State, outcome, r.Duration.Round(time.Millisecond))
	}
	tw.Flush()
	return s
}
