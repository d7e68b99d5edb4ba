// Package enrichcache stores AI analysis responses in SQLite so repeated
// runs over the same backlog rows skip redundant model calls.
package enrichcache
