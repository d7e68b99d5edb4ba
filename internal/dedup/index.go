// Package dedup maintains the set of catalog identifiers already present on
// the products sheet so keyword expansion never appends a row twice.
//
// The index is a TTL-bounded read-through cache: membership checks rebuild
// it from one bulk column read when stale, and successful insertions
// invalidate it immediately rather than patching the set in place.
package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/catalog"
	"scribe/internal/logging"
)

// Source supplies the raw source-link column the index is built from.
type Source interface {
	SourceCells(ctx context.Context) ([]string, error)
}

// Index answers "is this identifier already on the sheet" without paying a
// network read per check.
type Index struct {
	source Source
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	ids     map[string]struct{}
	rows    map[string][]int
	builtAt time.Time

	now func() time.Time
}

// NewIndex builds an index over the given source column. A non-positive TTL
// falls back to five minutes.
func NewIndex(source Source, ttl time.Duration, logger *slog.Logger) *Index {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Index{
		source: source,
		ttl:    ttl,
		logger: logging.NewComponentLogger(logger, "dedup"),
		now:    time.Now,
	}
}

// Contains reports whether the identifier is already present.
func (i *Index) Contains(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	ids, _, err := i.snapshot(ctx)
	if err != nil {
		return false, err
	}
	_, ok := ids[id]
	return ok, nil
}

// ContainsBatch checks many identifiers against one snapshot so a keyword
// expansion costs a single rebuild at most.
func (i *Index) ContainsBatch(ctx context.Context, ids []string) (map[string]bool, error) {
	known, _, err := i.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		_, ok := known[id]
		result[id] = ok
	}
	return result, nil
}

// Rows returns the sheet rows that carry the identifier, in sheet order.
// Callers use it to collapse duplicate unprocessed rows.
func (i *Index) Rows(ctx context.Context, id string) ([]int, error) {
	if id == "" {
		return nil, nil
	}
	_, rows, err := i.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return append([]int(nil), rows[id]...), nil
}

// Invalidate drops the cached set. Callers invoke it after any append so the
// next check observes the new rows.
func (i *Index) Invalidate() {
	i.mu.Lock()
	i.ids = nil
	i.rows = nil
	i.builtAt = time.Time{}
	i.mu.Unlock()
}

func (i *Index) snapshot(ctx context.Context) (map[string]struct{}, map[string][]int, error) {
	i.mu.RLock()
	if i.ids != nil && i.now().Sub(i.builtAt) < i.ttl {
		ids, rows := i.ids, i.rows
		i.mu.RUnlock()
		return ids, rows, nil
	}
	i.mu.RUnlock()

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ids != nil && i.now().Sub(i.builtAt) < i.ttl {
		return i.ids, i.rows, nil
	}

	cells, err := i.source.SourceCells(ctx)
	if err != nil {
		return nil, nil, err
	}
	ids := make(map[string]struct{}, len(cells))
	rows := make(map[string][]int, len(cells))
	for idx, cell := range cells {
		id := catalog.ExtractIdentifier(cell)
		if id == "" {
			continue
		}
		ids[id] = struct{}{}
		rows[id] = append(rows[id], idx+2)
	}
	i.ids = ids
	i.rows = rows
	i.builtAt = i.now()
	i.logger.Debug("index rebuilt", logging.Int("identifiers", len(ids)))
	return ids, rows, nil
}
