package enrichcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scribe/internal/config"
)

// Cache persists AI analysis responses keyed by product identifier and
// prompt fingerprint, so reprocessing a row does not repeat the call.
type Cache struct {
	db      *sql.DB
	path    string
	ttl     time.Duration
	enabled bool

	now func() time.Time
}

// Open initializes or connects to the cache database.
func Open(cfg *config.Config) (*Cache, error) {
	if !cfg.EnrichCache.Enabled {
		return &Cache{enabled: false, now: time.Now}, nil
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.EnrichCache.Path
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	ttl := time.Duration(cfg.EnrichCache.TTLHours) * time.Hour
	cache := &Cache{db: db, path: dbPath, ttl: ttl, enabled: true, now: time.Now}
	if err := cache.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return cache, nil
}

func (c *Cache) applySchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS enrich_entries (
        identifier  TEXT NOT NULL,
        fingerprint TEXT NOT NULL,
        response    TEXT NOT NULL,
        created_at  TEXT NOT NULL,
        PRIMARY KEY (identifier, fingerprint)
    )`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure enrich_entries: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Fingerprint derives a stable key from the prompt inputs.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(strings.TrimSpace(part)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the cached response for the key when present and fresh.
func (c *Cache) Lookup(ctx context.Context, identifier, fingerprint string) (string, bool, error) {
	if !c.enabled || identifier == "" {
		return "", false, nil
	}
	row := c.db.QueryRowContext(ctx,
		"SELECT response, created_at FROM enrich_entries WHERE identifier = ? AND fingerprint = ?",
		identifier, fingerprint)
	var response, createdAt string
	if err := row.Scan(&response, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup cache entry: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return "", false, nil
	}
	if c.ttl > 0 && c.now().Sub(created) > c.ttl {
		return "", false, nil
	}
	return response, true, nil
}

// Store inserts or replaces the cached response for the key.
func (c *Cache) Store(ctx context.Context, identifier, fingerprint, response string) error {
	if !c.enabled {
		return nil
	}
	if identifier == "" {
		return errors.New("identifier cannot be empty")
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO enrich_entries (identifier, fingerprint, response, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(identifier, fingerprint) DO UPDATE SET
             response = excluded.response,
             created_at = excluded.created_at`,
		identifier, fingerprint, response, c.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// Prune removes entries older than the TTL and reports how many went away.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	if !c.enabled || c.ttl <= 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-c.ttl).UTC().Format(time.RFC3339Nano)
	res, err := c.db.ExecContext(ctx, "DELETE FROM enrich_entries WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Path    string
	Entries int64
	Oldest  time.Time
}

// Stats reports entry count and the oldest entry's age.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Path: c.path}
	if !c.enabled {
		return stats, nil
	}
	row := c.db.QueryRowContext(ctx,
		"SELECT COUNT(1), COALESCE(MIN(created_at), '') FROM enrich_entries")
	var oldest string
	if err := row.Scan(&stats.Entries, &oldest); err != nil {
		return stats, fmt.Errorf("read cache stats: %w", err)
	}
	if oldest != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, oldest); err == nil {
			stats.Oldest = parsed
		}
	}
	return stats, nil
}
