// Package logging assembles the structured slog loggers used across the
// pipeline.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so run code automatically tags
// log lines with job rows, stages, run modes, and correlation IDs. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
