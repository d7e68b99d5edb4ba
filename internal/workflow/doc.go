// Package workflow orchestrates the content pipeline end to end.
//
// Three run modes share one per-row pipeline: Drain walks the existing
// backlog, Expand grows the backlog from keyword searches before draining,
// and PlanDay lays out a fixed slot ladder for batch scheduling. Every row
// passes through refresh, dedup, detail lookup, AI analysis, entity
// reconciliation, and exactly one publisher call; publishing is never
// retried.
package workflow
