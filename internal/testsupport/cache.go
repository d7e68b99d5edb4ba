package testsupport

import (
	"testing"

	"scribe/internal/config"
	"scribe/internal/enrichcache"
)

// MustOpenCache opens an enrichcache.Cache for tests and registers cleanup.
func MustOpenCache(t testing.TB, cfg *config.Config) *enrichcache.Cache {
	t.Helper()

	cache, err := enrichcache.Open(cfg)
	if err != nil {
		t.Fatalf("enrichcache.Open: %v", err)
	}
	t.Cleanup(func() {
		cache.Close()
	})
	return cache
}
