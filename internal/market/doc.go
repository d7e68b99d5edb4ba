// Package market talks to the marketplace affiliate API for product
// search, latest-release feeds, and per-product detail lookup.
package market
