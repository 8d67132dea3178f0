package orchestrator

import (
	"github.com/specialistvlad/bundlegrid/internal/fetch"
)

// Node ID helpers. Shared nodes are keyed by bundle, per-variant nodes by
// variant.
func fetchID(id fetch.Identity) string { return "fetch." + id.String() }
func extractID(bundle string) string { return "extract." + bundle }
func collectID(v string) string { return "collect." + v }
func versionID(v string) string { return "version." + v }
func pruneID(v string) string { return "prune." + v }

// AssembleID is the output assembly node of variant v.
func AssembleID(v string) string { return "assemble." + v }

func cleanID(bundle string) string { return "clean." + bundle }

// cleanBuildID uses a separator no bundle name may contain, so it never
// collides with cleanID.
const cleanBuildID = "clean:build"
