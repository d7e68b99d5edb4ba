// Package reconcile decides whether an AI response agrees with the entities
// the operator recorded for a job.
//
// Responses arrive in three JSON schemas (an explicit judgement, a legacy
// dual-boolean form, and a free suggestion) plus arbitrary prose. The parser
// degrades through those stages and, when everything fails, falls back to
// the operator's own values. Every stage composes with (value, ok) returns;
// Reconcile itself never fails.
package reconcile
