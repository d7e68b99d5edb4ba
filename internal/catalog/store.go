package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"scribe/internal/sheet"
)

// API is the slice of the sheet client the store consumes.
type API interface {
	Values(ctx context.Context, rangeSpec string, mode sheet.RenderMode) ([][]string, error)
	Update(ctx context.Context, rangeSpec string, rows [][]string) error
	Append(ctx context.Context, rangeSpec string, rows [][]string) error
	DeleteRows(ctx context.Context, sheetTitle string, rowNumbers []int) error
}

// Store reads and writes typed rows on the products and keywords sheets.
// Row numbers are 1-based and include the header row, so data starts at 2.
type Store struct {
	api      API
	products string
	keywords string
}

// NewStore wires a Store over the sheet client.
func NewStore(api API, productsSheet, keywordsSheet string) (*Store, error) {
	if api == nil {
		return nil, errors.New("sheet api required")
	}
	productsSheet = strings.TrimSpace(productsSheet)
	keywordsSheet = strings.TrimSpace(keywordsSheet)
	if productsSheet == "" || keywordsSheet == "" {
		return nil, errors.New("sheet names required")
	}
	return &Store{api: api, products: productsSheet, keywords: keywordsSheet}, nil
}

// ProductsSheet returns the products sheet title.
func (s *Store) ProductsSheet() string { return s.products }

// Jobs returns every data row of the products sheet in sheet order.
// Formula rendering is required so HYPERLINK cells keep their URLs.
func (s *Store) Jobs(ctx context.Context) ([]Job, error) {
	rows, err := s.api.Values(ctx, s.products+"!A2:I", sheet.RenderFormula)
	if err != nil {
		return nil, fmt.Errorf("read product rows: %w", err)
	}
	jobs := make([]Job, 0, len(rows))
	for i, cells := range rows {
		jobs = append(jobs, JobFromRow(i+2, cells))
	}
	return jobs, nil
}

// Unprocessed returns backlog rows eligible for processing in sheet order,
// capped at max when max is positive.
func (s *Store) Unprocessed(ctx context.Context, max int) ([]Job, error) {
	jobs, err := s.Jobs(ctx)
	if err != nil {
		return nil, err
	}
	selected := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if !job.Unprocessed() {
			continue
		}
		if strings.TrimSpace(job.SourceURL) == "" {
			continue
		}
		selected = append(selected, job)
		if max > 0 && len(selected) >= max {
			break
		}
	}
	return selected, nil
}

// Refresh re-reads a single row. Callers use it immediately before mutating
// a row to detect concurrent edits.
func (s *Store) Refresh(ctx context.Context, rowNumber int) (Job, error) {
	if rowNumber < 2 {
		return Job{}, fmt.Errorf("row %d is not a data row", rowNumber)
	}
	spec := fmt.Sprintf("%s!A%d:I%d", s.products, rowNumber, rowNumber)
	rows, err := s.api.Values(ctx, spec, sheet.RenderFormula)
	if err != nil {
		return Job{}, fmt.Errorf("refresh row %d: %w", rowNumber, err)
	}
	if len(rows) == 0 {
		return Job{Row: rowNumber}, nil
	}
	return JobFromRow(rowNumber, rows[0]), nil
}

// WriteJob persists the job as one full-row update so readers never observe
// a partially written row.
func (s *Store) WriteJob(ctx context.Context, job Job) error {
	if job.Row < 2 {
		return fmt.Errorf("row %d is not a data row", job.Row)
	}
	spec := fmt.Sprintf("%s!A%d:I%d", s.products, job.Row, job.Row)
	if err := s.api.Update(ctx, spec, [][]string{job.Cells()}); err != nil {
		return fmt.Errorf("write row %d: %w", job.Row, err)
	}
	return nil
}

// AppendJobs adds new backlog rows after the current table.
func (s *Store) AppendJobs(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, job.Cells())
	}
	if err := s.api.Append(ctx, s.products+"!A:I", rows); err != nil {
		return fmt.Errorf("append %d rows: %w", len(rows), err)
	}
	return nil
}

// DeleteJobRows removes product rows by number. The sheet client handles
// descending-order deletion.
func (s *Store) DeleteJobRows(ctx context.Context, rowNumbers []int) error {
	return s.api.DeleteRows(ctx, s.products, rowNumbers)
}

// LastScheduledAt returns the latest scheduled timestamp on the sheet, or
// ok=false when no row carries one.
func (s *Store) LastScheduledAt(ctx context.Context, now time.Time) (time.Time, bool, error) {
	rows, err := s.api.Values(ctx, s.products+"!F2:F", sheet.RenderFormatted)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read scheduled column: %w", err)
	}
	var latest time.Time
	found := false
	for _, cells := range rows {
		if len(cells) == 0 {
			continue
		}
		parsed, ok := ParseSlot(cells[0], now)
		if !ok {
			continue
		}
		if !found || parsed.After(latest) {
			latest = parsed
			found = true
		}
	}
	return latest, found, nil
}

// SourceCells returns the raw source-link column used to rebuild the
// deduplication index.
func (s *Store) SourceCells(ctx context.Context) ([]string, error) {
	rows, err := s.api.Values(ctx, s.products+"!D2:D", sheet.RenderFormula)
	if err != nil {
		return nil, fmt.Errorf("read source column: %w", err)
	}
	cells := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			cells = append(cells, "")
			continue
		}
		cells = append(cells, row[0])
	}
	return cells, nil
}

// Keywords returns every keyword row.
func (s *Store) Keywords(ctx context.Context) ([]Keyword, error) {
	rows, err := s.api.Values(ctx, s.keywords+"!A2:G", sheet.RenderFormatted)
	if err != nil {
		return nil, fmt.Errorf("read keyword rows: %w", err)
	}
	keywords := make([]Keyword, 0, len(rows))
	for i, cells := range rows {
		keywords = append(keywords, KeywordFromRow(i+2, cells))
	}
	return keywords, nil
}

// NextKeywords returns up to max active keywords, least recently processed
// first. Rows that never ran sort ahead of everything else.
func (s *Store) NextKeywords(ctx context.Context, max int, now time.Time) ([]Keyword, error) {
	keywords, err := s.Keywords(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]Keyword, 0, len(keywords))
	for _, kw := range keywords {
		if kw.Active && strings.TrimSpace(kw.Keyword) != "" {
			active = append(active, kw)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		ti, oki := ParseStamp(active[i].LastProcessedAt, now.Location())
		tj, okj := ParseStamp(active[j].LastProcessedAt, now.Location())
		if oki != okj {
			return !oki
		}
		return ti.Before(tj)
	})
	if max > 0 && len(active) > max {
		active = active[:max]
	}
	return active, nil
}

// MarkKeywordProcessed stamps the keyword row with the run time and result.
func (s *Store) MarkKeywordProcessed(ctx context.Context, kw Keyword, result string, now time.Time) error {
	if kw.Row < 2 {
		return fmt.Errorf("row %d is not a data row", kw.Row)
	}
	spec := fmt.Sprintf("%s!E%d:F%d", s.keywords, kw.Row, kw.Row)
	cells := []string{now.Format(slotLayoutWithYear), strings.TrimSpace(result)}
	if err := s.api.Update(ctx, spec, [][]string{cells}); err != nil {
		return fmt.Errorf("mark keyword row %d: %w", kw.Row, err)
	}
	return nil
}
