// Package logging provides a minimal logging interface and adapters for evalmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the runner, broadcaster, stores and middleware use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - EvalLogger with run/unit context and evaluation specific helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(func(o *runner.Options) { o.Logger = logger })
//
// The interface is kept minimal so any structured logger can be plugged in.
package logging
