// Package services defines shared utilities consumed by the workflow and the
// external integrations it orchestrates.
//
// Key responsibilities:
//   - Context helpers that stamp job rows, stage names, run modes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent job statuses (error vs draft vs duplicate).
//
// Use these helpers when wiring new processing logic so operational
// behaviour (error handling, observability, retries) stays uniform.
package services
