// Package testsupport provides helpers shared by the package test suites.
package testsupport

import (
	"path/filepath"
	"testing"

	"scribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Sheet.SpreadsheetID = "test-spreadsheet"
	cfgVal.Sheet.APIKey = "test-sheet-key"
	cfgVal.Market.BaseURL = "https://market.test/api"
	cfgVal.Market.APIID = "test-api-id"
	cfgVal.LLM.APIKey = "test-llm-key"
	cfgVal.Publisher.BaseURL = "https://blog.test"
	cfgVal.Publisher.Username = "bot"
	cfgVal.Publisher.AppPassword = "test-app-pass"
	cfgVal.EnrichCache.Path = filepath.Join(base, "data", "enrich_cache.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
		b.cfg.Notifications.Runs = true
		b.cfg.Notifications.Errors = true
	}
}

// WithEnrichCache enables the on-disk AI response cache.
func WithEnrichCache(ttlHours int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.EnrichCache.Enabled = true
		b.cfg.EnrichCache.TTLHours = ttlHours
	}
}

// WithPrefilterRule appends an exclusion rule to the test config.
func WithPrefilterRule(work, reason string, aliases ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Prefilter.Rules = append(b.cfg.Prefilter.Rules, config.PrefilterRule{
			Work:    work,
			Aliases: aliases,
			Reason:  reason,
		})
	}
}
