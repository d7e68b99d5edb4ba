package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"scribe/internal/catalog"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/market"
	"scribe/internal/publish"
)

type fakeCatalog struct {
	mu       sync.Mutex
	jobs     map[int]catalog.Job
	keywords []catalog.Keyword

	lastScheduled   time.Time
	hasScheduled    bool
	writes          []catalog.Job
	appends         []catalog.Job
	deleted         []int
	markedKeywords  []string
	markedResults   []string
	refreshOverride func(row int) (catalog.Job, bool)
}

func newFakeCatalog(jobs ...catalog.Job) *fakeCatalog {
	f := &fakeCatalog{jobs: make(map[int]catalog.Job)}
	for _, job := range jobs {
		f.jobs[job.Row] = job
	}
	return f
}

func (f *fakeCatalog) Jobs(ctx context.Context) ([]catalog.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]catalog.Job, 0, len(f.jobs))
	for row := 2; row < 2+len(f.jobs)+100; row++ {
		if job, ok := f.jobs[row]; ok {
			rows = append(rows, job)
		}
	}
	return rows, nil
}

func (f *fakeCatalog) Unprocessed(ctx context.Context, max int) ([]catalog.Job, error) {
	all, _ := f.Jobs(ctx)
	var out []catalog.Job
	for _, job := range all {
		if job.Unprocessed() && job.SourceURL != "" {
			out = append(out, job)
			if max > 0 && len(out) == max {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) Refresh(ctx context.Context, row int) (catalog.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshOverride != nil {
		if job, ok := f.refreshOverride(row); ok {
			return job, nil
		}
	}
	job, ok := f.jobs[row]
	if !ok {
		return catalog.Job{}, fmt.Errorf("row %d not found", row)
	}
	return job, nil
}

func (f *fakeCatalog) WriteJob(ctx context.Context, job catalog.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, job)
	f.jobs[job.Row] = job
	return nil
}

func (f *fakeCatalog) AppendJobs(ctx context.Context, jobs []catalog.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := 2
	for row := range f.jobs {
		if row >= next {
			next = row + 1
		}
	}
	for _, job := range jobs {
		job.Row = next
		next++
		f.jobs[job.Row] = job
		f.appends = append(f.appends, job)
	}
	return nil
}

func (f *fakeCatalog) DeleteJobRows(ctx context.Context, rows []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		delete(f.jobs, row)
		f.deleted = append(f.deleted, row)
	}
	return nil
}

func (f *fakeCatalog) LastScheduledAt(ctx context.Context, now time.Time) (time.Time, bool, error) {
	return f.lastScheduled, f.hasScheduled, nil
}

func (f *fakeCatalog) NextKeywords(ctx context.Context, max int, now time.Time) ([]catalog.Keyword, error) {
	if max > 0 && len(f.keywords) > max {
		return f.keywords[:max], nil
	}
	return f.keywords, nil
}

func (f *fakeCatalog) MarkKeywordProcessed(ctx context.Context, kw catalog.Keyword, result string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedKeywords = append(f.markedKeywords, kw.Keyword)
	f.markedResults = append(f.markedResults, result)
	return nil
}

type fakeDedup struct {
	mu          sync.Mutex
	rows        map[string][]int
	invalidated int
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{rows: make(map[string][]int)}
}

func (f *fakeDedup) Contains(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[id]) > 0, nil
}

func (f *fakeDedup) ContainsBatch(ctx context.Context, ids []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		out[id] = len(f.rows[id]) > 0
	}
	return out, nil
}

func (f *fakeDedup) Rows(ctx context.Context, id string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id], nil
}

func (f *fakeDedup) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

type fakeMarket struct {
	mu          sync.Mutex
	searches    map[string][]market.Listing
	latest      []market.Listing
	details     map[string]market.Details
	detailErrs  []error
	detailCalls int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		searches: make(map[string][]market.Listing),
		details:  make(map[string]market.Details),
	}
}

func (f *fakeMarket) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]market.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches[keyword], nil
}

func (f *fakeMarket) LatestProducts(ctx context.Context, limit int) ([]market.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeMarket) ProductDetails(ctx context.Context, url string) (market.Details, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	if len(f.detailErrs) > 0 {
		err := f.detailErrs[0]
		f.detailErrs = f.detailErrs[1:]
		if err != nil {
			return market.Details{}, err
		}
	}
	details, ok := f.details[url]
	if !ok {
		return market.Details{}, fmt.Errorf("%w: %s", market.ErrProductNotFound, url)
	}
	return details, nil
}

type fakeAI struct {
	mu         sync.Mutex
	textResp   string
	textErr    error
	imageResp  string
	imageErr   error
	textCalls  int
	imageCalls int
}

func (f *fakeAI) SuggestEntities(ctx context.Context, title, description, expectedWork, expectedChar string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	return f.textResp, f.textErr
}

func (f *fakeAI) AnalyzeImage(ctx context.Context, imageURL, expectedWork, expectedChar string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	return f.imageResp, f.imageErr
}

type fakePublisher struct {
	mu          sync.Mutex
	scheduled   []publish.Draft
	drafted     []publish.Draft
	bySlug      map[string]*publish.Post
	mostRecent  time.Time
	scheduleErr error
	nextID      int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{bySlug: make(map[string]*publish.Post), nextID: 100}
}

func (f *fakePublisher) SchedulePost(ctx context.Context, draft publish.Draft) (publish.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, draft)
	if f.scheduleErr != nil {
		return publish.Post{}, f.scheduleErr
	}
	f.nextID++
	return publish.Post{
		ID:    f.nextID,
		URL:   fmt.Sprintf("https://blog.example/?p=%d", f.nextID),
		Slug:  draft.Slug,
		Date:  draft.ScheduledAt,
		State: "future",
	}, nil
}

func (f *fakePublisher) SaveDraft(ctx context.Context, draft publish.Draft) (publish.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafted = append(f.drafted, draft)
	f.nextID++
	return publish.Post{
		ID:    f.nextID,
		URL:   fmt.Sprintf("https://blog.example/?p=%d", f.nextID),
		Slug:  draft.Slug,
		State: "draft",
	}, nil
}

func (f *fakePublisher) FindBySlug(ctx context.Context, slug string) (*publish.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bySlug[slug], nil
}

func (f *fakePublisher) MostRecentScheduledTime(ctx context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mostRecent, nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	started    int
	completed  int
	scheduled  int
	drafted    int
	duplicates int
	errors     int
}

func (f *fakeNotifier) NotifyRunStarted(ctx context.Context, mode string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return nil
}

func (f *fakeNotifier) NotifyRunCompleted(ctx context.Context, mode string, processed, failed int, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
	return nil
}

func (f *fakeNotifier) NotifyJobScheduled(ctx context.Context, title string, slot time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled++
	return nil
}

func (f *fakeNotifier) NotifyJobDrafted(ctx context.Context, title, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafted++
	return nil
}

func (f *fakeNotifier) NotifyDuplicateSkipped(ctx context.Context, identifier string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duplicates++
	return nil
}

func (f *fakeNotifier) NotifyError(ctx context.Context, err error, context string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors++
	return nil
}

func (f *fakeNotifier) TestNotification(ctx context.Context) error { return nil }

type fixture struct {
	cfg       config.Config
	store     *fakeCatalog
	dedup     *fakeDedup
	market    *fakeMarket
	ai        *fakeAI
	publisher *fakePublisher
	notifier  *fakeNotifier
	now       time.Time
}

func newFixture(jobs ...catalog.Job) *fixture {
	cfg := config.Default()
	cfg.Workflow.MaxJobsPerRun = 10
	cfg.Workflow.MaxKeywordsPerRun = 3
	cfg.Workflow.RetryAttempts = 3
	cfg.Scheduler.IntervalMinutes = 60
	cfg.Scheduler.BatchIntervalMinutes = 30
	cfg.Scheduler.MaxSlotsPerDay = 5
	return &fixture{
		cfg:       cfg,
		store:     newFakeCatalog(jobs...),
		dedup:     newFakeDedup(),
		market:    newFakeMarket(),
		ai:        &fakeAI{},
		publisher: newFakePublisher(),
		notifier:  &fakeNotifier{},
		now:       time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local),
	}
}

func (fx *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(&fx.cfg, Deps{
		Store:     fx.store,
		Dedup:     fx.dedup,
		Market:    fx.market,
		AI:        fx.ai,
		Publisher: fx.publisher,
		Notifier:  fx.notifier,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	o.now = func() time.Time { return fx.now }
	o.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return o
}

// productJob builds an unprocessed row pointing at a fake product.
func (fx *fixture) productJob(row int, id, work, character string) catalog.Job {
	url := "https://market.example/detail/?cid=" + id
	fx.market.details[url] = market.Details{
		Identifier:  id,
		Title:       "商品 " + id,
		Description: "説明 " + id,
		Circle:      "サークルX",
		URL:         url,
		MainImage:   "https://img.example/" + id + ".jpg",
	}
	fx.dedup.rows[id] = []int{row}
	return catalog.Job{
		Row:               row,
		ExpectedWork:      work,
		ExpectedCharacter: character,
		SourceURL:         url,
	}
}
