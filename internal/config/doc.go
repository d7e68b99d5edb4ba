// Package config loads, normalizes, and validates the TOML configuration
// file. Defaults live in defaults.go; normalization expands paths and fills
// environment fallbacks before Validate runs.
package config
