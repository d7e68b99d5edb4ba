// Package sheet implements the low-level client for the hosted spreadsheet
// that serves as the system of record.
//
// The client is deliberately thin: it reads and writes ranges of string
// cells, deletes rows, and resolves sheet titles to numeric IDs. Row
// interpretation (which column means what) lives in the catalog package.
// All calls pass through a shared Gate so concurrent callers collectively
// stay inside the API request budget.
package sheet
