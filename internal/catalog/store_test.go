package catalog_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"scribe/internal/catalog"
	"scribe/internal/sheet"
)

type fakeAPI struct {
	values  map[string][][]string
	updates []struct {
		spec string
		rows [][]string
	}
	appends [][]string
	deleted []int
}

func (f *fakeAPI) Values(_ context.Context, spec string, _ sheet.RenderMode) ([][]string, error) {
	rows, ok := f.values[spec]
	if !ok {
		return nil, fmt.Errorf("unexpected range %q", spec)
	}
	return rows, nil
}

func (f *fakeAPI) Update(_ context.Context, spec string, rows [][]string) error {
	f.updates = append(f.updates, struct {
		spec string
		rows [][]string
	}{spec, rows})
	return nil
}

func (f *fakeAPI) Append(_ context.Context, _ string, rows [][]string) error {
	f.appends = append(f.appends, rows...)
	return nil
}

func (f *fakeAPI) DeleteRows(_ context.Context, _ string, rowNumbers []int) error {
	f.deleted = append(f.deleted, rowNumbers...)
	return nil
}

func newStore(t *testing.T, api *fakeAPI) *catalog.Store {
	t.Helper()
	store, err := catalog.NewStore(api, "products", "keywords")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestUnprocessedSkipsProtectedAndLinkedRows(t *testing.T) {
	api := &fakeAPI{values: map[string][][]string{
		"products!A2:I": {
			{"", "作品A", "キャラA", "https://example.com/detail/?cid=a1/"},
			{"予約投稿", "作品B", "キャラB", "https://example.com/detail/?cid=b2/"},
			{"", "作品C", "キャラC", "https://example.com/detail/?cid=c3/", "", "09/02 18:30"},
			{"", "作品D", "キャラD", "https://example.com/detail/?cid=d4/", "", "", "https://blog.example.com/?p=9"},
			{"", "作品E", "キャラE", ""},
			{"", "作品F", "キャラF", "https://example.com/detail/?cid=f6/"},
		},
	}}
	store := newStore(t, api)

	jobs, err := store.Unprocessed(context.Background(), 0)
	if err != nil {
		t.Fatalf("unprocessed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 eligible rows, got %d", len(jobs))
	}
	if jobs[0].Row != 2 || jobs[1].Row != 7 {
		t.Fatalf("unexpected rows: %d, %d", jobs[0].Row, jobs[1].Row)
	}

	capped, err := store.Unprocessed(context.Background(), 1)
	if err != nil {
		t.Fatalf("unprocessed capped: %v", err)
	}
	if len(capped) != 1 {
		t.Fatalf("expected cap to apply, got %d", len(capped))
	}
}

func TestWriteJobUpdatesFullRow(t *testing.T) {
	api := &fakeAPI{values: map[string][][]string{}}
	store := newStore(t, api)

	job := catalog.Job{
		Row:            5,
		Status:         catalog.StatusScheduled,
		ExpectedWork:   "作品A",
		SourceURL:      "https://example.com/detail/?cid=a1/",
		SourceLabel:    "a1",
		Title:          "タイトル",
		ScheduledAt:    "09/02 18:30",
		PublishedURL:   "https://blog.example.com/?p=12",
		PublishedLabel: "12",
	}
	if err := store.WriteJob(context.Background(), job); err != nil {
		t.Fatalf("write job: %v", err)
	}
	if len(api.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(api.updates))
	}
	update := api.updates[0]
	if update.spec != "products!A5:I5" {
		t.Fatalf("unexpected range %q", update.spec)
	}
	if len(update.rows) != 1 || len(update.rows[0]) != 9 {
		t.Fatalf("expected one full row, got %+v", update.rows)
	}
	if !strings.HasPrefix(update.rows[0][3], "=HYPERLINK(") {
		t.Fatalf("source column should be a hyperlink, got %q", update.rows[0][3])
	}
}

func TestWriteJobRejectsHeaderRow(t *testing.T) {
	store := newStore(t, &fakeAPI{})
	if err := store.WriteJob(context.Background(), catalog.Job{Row: 1}); err == nil {
		t.Fatal("expected header row write to fail")
	}
}

func TestLastScheduledAtPicksLatest(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{values: map[string][][]string{
		"products!F2:F": {
			{"09/01 10:00"},
			{},
			{"09/03 08:00"},
			{"not a time"},
			{"09/02 22:00"},
		},
	}}
	store := newStore(t, api)

	latest, found, err := store.LastScheduledAt(context.Background(), now)
	if err != nil || !found {
		t.Fatalf("last scheduled: %v found=%v", err, found)
	}
	want := time.Date(2026, 9, 3, 8, 0, 0, 0, time.UTC)
	if !latest.Equal(want) {
		t.Fatalf("latest = %v, want %v", latest, want)
	}
}

func TestLastScheduledAtEmptyColumn(t *testing.T) {
	api := &fakeAPI{values: map[string][][]string{"products!F2:F": {}}}
	store := newStore(t, api)
	if _, found, err := store.LastScheduledAt(context.Background(), time.Now()); err != nil || found {
		t.Fatalf("expected no timestamp, err=%v found=%v", err, found)
	}
}

func TestNextKeywordsOrdersOldestFirst(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{values: map[string][][]string{
		"keywords!A2:G": {
			{"TRUE", "", "", "新しい語", "2026/08/30 10:00"},
			{"TRUE", "", "", "未処理の語", ""},
			{"FALSE", "", "", "停止中の語", ""},
			{"TRUE", "", "", "古い語", "2026/07/01 10:00"},
			{"TRUE", "", "", ""},
		},
	}}
	store := newStore(t, api)

	keywords, err := store.NextKeywords(context.Background(), 2, now)
	if err != nil {
		t.Fatalf("next keywords: %v", err)
	}
	if len(keywords) != 2 {
		t.Fatalf("expected 2 keywords, got %d", len(keywords))
	}
	if keywords[0].Keyword != "未処理の語" {
		t.Fatalf("never-processed keyword should sort first, got %q", keywords[0].Keyword)
	}
	if keywords[1].Keyword != "古い語" {
		t.Fatalf("oldest keyword should sort next, got %q", keywords[1].Keyword)
	}
}

func TestNextKeywordsLastYearSortsAsStale(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{values: map[string][][]string{
		"keywords!A2:G": {
			{"TRUE", "", "", "今年の語", "2026/08/01 10:00"},
			{"TRUE", "", "", "去年の語", "2025/12/31 23:00"},
		},
	}}
	store := newStore(t, api)

	keywords, err := store.NextKeywords(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("next keywords: %v", err)
	}
	if len(keywords) != 1 {
		t.Fatalf("expected 1 keyword, got %d", len(keywords))
	}
	if keywords[0].Keyword != "去年の語" {
		t.Fatalf("keyword untouched since last year must come first, got %q", keywords[0].Keyword)
	}
}

func TestMarkKeywordProcessed(t *testing.T) {
	api := &fakeAPI{values: map[string][][]string{}}
	store := newStore(t, api)
	now := time.Date(2026, 8, 31, 12, 5, 0, 0, time.UTC)

	kw := catalog.Keyword{Row: 4, Keyword: "検索語"}
	if err := store.MarkKeywordProcessed(context.Background(), kw, "3件追加", now); err != nil {
		t.Fatalf("mark keyword: %v", err)
	}
	if len(api.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(api.updates))
	}
	update := api.updates[0]
	if update.spec != "keywords!E4:F4" {
		t.Fatalf("unexpected range %q", update.spec)
	}
	if update.rows[0][0] != "2026/08/31 12:05" || update.rows[0][1] != "3件追加" {
		t.Fatalf("unexpected cells %+v", update.rows[0])
	}
}
