// Package catalog gives the spreadsheet rows a typed shape.
//
// A Job is one product row (status, operator expectations, source link,
// schedule and publish bookkeeping); a Keyword is one search-rotation row.
// The Store maps ranges of raw cells to these types and writes them back as
// whole rows. Status strings stay in the operators' language; the package
// only normalizes spelling drift, it never rewrites what a human entered.
package catalog
