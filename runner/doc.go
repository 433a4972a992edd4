// Package runner implements the run orchestration layer for evalmesh.
//
// A Runner owns the lifecycle of evaluation runs: it expands case sources
// into units, dispatches them through the pipeline executor on a bounded
// worker pool (or strictly sequentially), accumulates results in completion
// order, notifies sinks and reporters, computes metrics and persists
// completed runs.
//
// # Lifecycle
//
//	pending -> running -> completed | error | cancelled
//
// Every run executes on its own goroutine; Start never blocks. Cancellation
// is cooperative: dispatch stops, units already in flight finish and their
// results are kept. Each unit is bounded by the configured timeout and a
// timed-out unit yields an error result and frees its slot.
//
// Runs are tracked in a Registry. Terminal runs stay queryable until they
// are pruned, either explicitly or after the retention window.
package runner
