// Package reporter renders evaluation runs in-process.
//
// Reporters run synchronously on the run's goroutine: Init before the first
// unit, OnResult once per result in completion order and Finalize with the
// frozen snapshot. Console prints a summary table, Log writes structured log
// lines and Multi fans out to several reporters.
package reporter
