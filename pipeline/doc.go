// Package pipeline executes a single evaluation case.
//
// ExecuteCase runs the stages of one unit in a fixed order:
//
//  1. pre-processors over the case input (per turn for multi-turn input)
//  2. the work function, once per turn, threading conversation history
//  3. response processors over the final response
//  4. the judge
//  5. result processors over the judgment
//
// Stages 1-5 are wrapped by the configured middleware, outermost first. Any
// failure short-circuits the remaining stages and yields a status=error
// result tagged with the failing stage. Panics are recovered at the unit
// boundary so one crashing case never aborts a run.
package pipeline
