// Package dag is the execution layer of bundlegrid. It holds the task graph
// built during configuration, enforces the per-node state machine and runs the
// graph concurrently on a worker pool, honoring every dependency edge.
//
// A node moves through Registered → Running → (Skipped | Executed) → Done.
// A node whose predecessor failed, or that was still waiting when the run was
// cancelled, ends in Failed without ever running.
package dag
