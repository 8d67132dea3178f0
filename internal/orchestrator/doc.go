/*
Package orchestrator turns a build definition into the task graph.

Pass 1 runs when the orchestrator is applied to a plan.Builder. It registers
one fetch node per bundle identity, shared by every variant, an extraction
node per non-asset bundle, and a variant callback. For each variant the
callback publishes the collector output into the variant, registers the
collector, version and prune nodes, and binds the build-wide version code and
the lazily resolved version name.

Pass 2 is expressed as pending attachments queued by the callback. They name
the packager's tasks by registry key and are resolved only after the packager
signals completion:

	extract.*            -> package-extraction
	package-extraction   -> version.<variant>
	package-extraction   -> prune.<variant> -> payload-assembly

Clean builds an unrelated graph that removes every cache and generated path.
*/
package orchestrator
