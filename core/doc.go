// Package core provides the foundational domain types and collaborator
// interfaces used by evalmesh. It defines the core abstractions for:
//
//   - Cases (immutable inputs supplied by a CaseSource) and work functions
//   - Verdicts and Judgments (typed output of a Judge, single or composite)
//   - Results (exactly one per executed case) and RunState snapshots
//   - Events broadcast to Sinks during a run, Reporters and Stores
//   - Pipeline extension points: processors and Middleware
//   - RunConfig and its Builder
//
// The package intentionally keeps implementation concerns (orchestration,
// concrete judges, sinks and stores) out of scope, exposing small interfaces
// so that back-ends can be swapped without touching the runner.
package core
