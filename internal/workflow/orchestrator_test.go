package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"scribe/internal/catalog"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/market"
	"scribe/internal/publish"
	"scribe/internal/testsupport"
)

func TestDrainSchedulesMatchingJob(t *testing.T) {
	fx := newFixture()
	job := fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.store.jobs[2] = job
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Scheduled != 1 || summary.Processed != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	if len(fx.publisher.scheduled) != 1 {
		t.Fatalf("expected 1 scheduled post, got %d", len(fx.publisher.scheduled))
	}
	draft := fx.publisher.scheduled[0]
	wantSlot := fx.now.Add(time.Hour)
	if !draft.ScheduledAt.Equal(wantSlot) {
		t.Errorf("slot = %v, want %v", draft.ScheduledAt, wantSlot)
	}
	if draft.Slug != "d-111111" {
		t.Errorf("slug = %q", draft.Slug)
	}

	if len(fx.store.writes) != 1 {
		t.Fatalf("expected 1 row write, got %d", len(fx.store.writes))
	}
	written := fx.store.writes[0]
	if written.Status != catalog.StatusScheduled {
		t.Errorf("status = %q", written.Status)
	}
	if written.ScheduledAt != "08/31 10:00" {
		t.Errorf("scheduled at = %q", written.ScheduledAt)
	}
	if written.ExpectedWork != "原作A" || written.ExpectedCharacter != "キャラA" {
		t.Errorf("entities = %q / %q", written.ExpectedWork, written.ExpectedCharacter)
	}
	if written.PublishedURL == "" {
		t.Error("published url should be recorded")
	}
	if written.ErrorDetail != "" {
		t.Errorf("error detail should be cleared, got %q", written.ErrorDetail)
	}
	if fx.notifier.scheduled != 1 {
		t.Errorf("scheduled notifications = %d", fx.notifier.scheduled)
	}
}

func TestDrainSpacesConsecutiveSlots(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.store.jobs[3] = fx.productJob(3, "d_222222", "原作B", "キャラB")
	o := fx.orchestrator(t)

	if _, err := o.Drain(context.Background()); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if len(fx.publisher.scheduled) != 2 {
		t.Fatalf("expected 2 scheduled posts, got %d", len(fx.publisher.scheduled))
	}
	first := fx.publisher.scheduled[0].ScheduledAt
	second := fx.publisher.scheduled[1].ScheduledAt
	if got := second.Sub(first); got != time.Hour {
		t.Errorf("slot gap = %v, want 1h", got)
	}
}

func TestDrainStartsAfterExistingSchedule(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.publisher.mostRecent = fx.now.Add(5 * time.Hour)
	o := fx.orchestrator(t)

	if _, err := o.Drain(context.Background()); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	want := fx.now.Add(6 * time.Hour)
	if got := fx.publisher.scheduled[0].ScheduledAt; !got.Equal(want) {
		t.Errorf("slot = %v, want %v (after remote schedule)", got, want)
	}
}

func TestDrainMismatchSavesDraftWithCorrections(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.ai.textResp = `{"judgement_result":"相違","correct_original_work":"別作品","correct_character_name":"別キャラ"}`
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Drafted != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(fx.publisher.scheduled) != 0 {
		t.Error("mismatch must not schedule")
	}
	if len(fx.publisher.drafted) != 1 {
		t.Fatalf("expected 1 draft post, got %d", len(fx.publisher.drafted))
	}

	written := fx.store.writes[0]
	if written.Status != catalog.StatusDraft {
		t.Errorf("status = %q", written.Status)
	}
	if written.ExpectedWork != "別作品" || written.ExpectedCharacter != "別キャラ" {
		t.Errorf("corrections not adopted: %q / %q", written.ExpectedWork, written.ExpectedCharacter)
	}
	if written.ScheduledAt != "" {
		t.Errorf("slot must be cleared for drafts, got %q", written.ScheduledAt)
	}
	if !strings.Contains(written.ErrorDetail, "相違") {
		t.Errorf("reason missing from row: %q", written.ErrorDetail)
	}
}

func TestDrainMarksSheetDuplicate(t *testing.T) {
	fx := newFixture()
	job := fx.productJob(7, "d_111111", "原作A", "キャラA")
	fx.store.jobs[7] = job
	fx.dedup.rows["d_111111"] = []int{2, 7}
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Duplicates != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	written := fx.store.writes[0]
	if written.Status != catalog.StatusDuplicate {
		t.Errorf("status = %q", written.Status)
	}
	if !strings.Contains(written.ErrorDetail, "行2") {
		t.Errorf("detail should name the earlier row: %q", written.ErrorDetail)
	}
	if fx.market.detailCalls != 0 {
		t.Error("duplicates must be detected before any product lookup")
	}
}

func TestDrainKeepsEarliestOfDuplicateRows(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.store.jobs[3] = fx.productJob(3, "d_111111", "原作A", "キャラA")
	fx.dedup.rows["d_111111"] = []int{2, 3}
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Scheduled != 1 || summary.Duplicates != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(fx.publisher.scheduled) != 1 {
		t.Fatalf("expected exactly 1 scheduled post, got %d", len(fx.publisher.scheduled))
	}
	if len(fx.store.writes) != 2 {
		t.Fatalf("expected 2 row writes, got %d", len(fx.store.writes))
	}
	first := fx.store.writes[0]
	if first.Row != 2 || first.Status != catalog.StatusScheduled {
		t.Errorf("row 2 write = row %d status %q, want scheduled", first.Row, first.Status)
	}
	second := fx.store.writes[1]
	if second.Row != 3 || second.Status != catalog.StatusDuplicate {
		t.Errorf("row 3 write = row %d status %q, want duplicate", second.Row, second.Status)
	}
	if !strings.Contains(second.ErrorDetail, "行2") {
		t.Errorf("demoted row should point at the surviving one: %q", second.ErrorDetail)
	}
}

func TestDrainTitleNamingOtherWorkBecomesDraft(t *testing.T) {
	fx := newFixture()
	fx.cfg.Prefilter.Rules = []config.PrefilterRule{
		{Work: "原作B", Aliases: []string{"ゲンサクB"}, Reason: "権利者からの削除依頼"},
	}
	job := fx.productJob(2, "d_111111", "原作A", "キャラA")
	details := fx.market.details[job.SourceURL]
	details.Title = "ゲンサクB 新刊セット"
	fx.market.details[job.SourceURL] = details
	fx.store.jobs[2] = job
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Drafted != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	written := fx.store.writes[0]
	if written.Status != catalog.StatusDraft {
		t.Errorf("status = %q", written.Status)
	}
	if !strings.Contains(written.ErrorDetail, "原作の不一致") {
		t.Errorf("detail = %q", written.ErrorDetail)
	}
	if fx.market.detailCalls != 1 {
		t.Errorf("detail calls = %d, want 1 (conflict is judged on the scraped title)", fx.market.detailCalls)
	}
	if fx.ai.textCalls != 0 {
		t.Error("conflicting titles must not reach the ai")
	}
}

func TestDrainAdoptsExistingPost(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.publisher.bySlug["d-111111"] = &publish.Post{ID: 9, URL: "https://blog.example/?p=9", State: "future"}
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Duplicates != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	written := fx.store.writes[0]
	if written.Status != catalog.StatusDuplicate {
		t.Errorf("status = %q", written.Status)
	}
	if written.PublishedURL != "https://blog.example/?p=9" {
		t.Errorf("existing post url not adopted: %q", written.PublishedURL)
	}
	if len(fx.publisher.scheduled) != 0 {
		t.Error("existing post must suppress scheduling")
	}
}

func TestDrainSkipsRowChangedByOperator(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.store.refreshOverride = func(row int) (catalog.Job, bool) {
		job := fx.store.jobs[row]
		job.RawStatus = "予約投稿"
		job.Status = catalog.StatusScheduled
		return job, true
	}
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Skipped != 1 || summary.Processed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(fx.store.writes) != 0 {
		t.Error("changed row must not be written")
	}
}

func TestDrainThinListingBecomesDraft(t *testing.T) {
	fx := newFixture()
	job := fx.productJob(2, "d_111111", "原作A", "キャラA")
	url := job.SourceURL
	details := fx.market.details[url]
	details.Description = ""
	fx.market.details[url] = details
	fx.store.jobs[2] = job
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Drafted != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	written := fx.store.writes[0]
	if written.Status != catalog.StatusDraft {
		t.Errorf("status = %q", written.Status)
	}
	if !strings.Contains(written.ErrorDetail, "商品情報の不足") {
		t.Errorf("detail = %q", written.ErrorDetail)
	}
	if fx.ai.textCalls != 0 {
		t.Error("thin listings must not reach the ai")
	}
}

func TestDrainPrefilterExcludesWork(t *testing.T) {
	fx := newFixture()
	fx.cfg.Prefilter.Rules = []config.PrefilterRule{
		{Work: "原作A", Aliases: []string{"げんさくA"}, Reason: "権利者からの削除依頼"},
	}
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Drafted != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	written := fx.store.writes[0]
	if written.Status != catalog.StatusDraft {
		t.Errorf("status = %q", written.Status)
	}
	if !strings.Contains(written.ErrorDetail, "削除依頼") {
		t.Errorf("detail = %q", written.ErrorDetail)
	}
	if fx.market.detailCalls != 0 {
		t.Error("prefiltered rows must not hit the marketplace")
	}
}

type fakeCache struct {
	responses map[string]string
	stored    int
}

func (f *fakeCache) Lookup(ctx context.Context, identifier, fingerprint string) (string, bool, error) {
	resp, ok := f.responses[identifier]
	return resp, ok, nil
}

func (f *fakeCache) Store(ctx context.Context, identifier, fingerprint, response string) error {
	f.stored++
	return nil
}

func TestDrainUsesCachedAnalysis(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	cache := &fakeCache{responses: map[string]string{
		"d_111111": `{"judgement_result":"一致"}`,
	}}
	o := fx.orchestrator(t)
	o.cache = cache

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Scheduled != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if fx.ai.textCalls != 0 || fx.ai.imageCalls != 0 {
		t.Errorf("cached response must skip ai calls: text=%d image=%d", fx.ai.textCalls, fx.ai.imageCalls)
	}
}

func TestDrainStoresAnalysisForLaterRuns(t *testing.T) {
	cacheCfg := testsupport.NewConfig(t, testsupport.WithEnrichCache(24))
	cache := testsupport.MustOpenCache(t, cacheCfg)

	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.ai.textResp = `{"judgement_result":"一致"}`
	o := fx.orchestrator(t)
	o.cache = cache

	if _, err := o.Drain(context.Background()); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if fx.ai.textCalls != 1 {
		t.Fatalf("first run should call the text facet once, got %d", fx.ai.textCalls)
	}

	// Same row drained again with a silent AI: the stored response must
	// satisfy the analysis on its own.
	second := newFixture()
	second.store.jobs[2] = second.productJob(2, "d_111111", "原作A", "キャラA")
	o2 := second.orchestrator(t)
	o2.cache = cache

	summary, err := o2.Drain(context.Background())
	if err != nil {
		t.Fatalf("second Drain returned error: %v", err)
	}
	if summary.Scheduled != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if second.ai.textCalls != 0 || second.ai.imageCalls != 0 {
		t.Errorf("cache hit should not call ai: text=%d image=%d", second.ai.textCalls, second.ai.imageCalls)
	}
}

func TestDrainRetriesTransientDetailFailure(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.market.detailErrs = []error{errors.New("timeout"), errors.New("timeout")}
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Scheduled != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if fx.market.detailCalls != 3 {
		t.Errorf("detail calls = %d, want 3 (two retries)", fx.market.detailCalls)
	}
}

func TestDrainPublishFailureIsNeverRetried(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.publisher.scheduleErr = errors.New("gateway timeout")
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(fx.publisher.scheduled) != 1 {
		t.Fatalf("publish attempts = %d, want exactly 1", len(fx.publisher.scheduled))
	}
	written := fx.store.writes[len(fx.store.writes)-1]
	if written.Status != catalog.StatusError {
		t.Errorf("status = %q", written.Status)
	}
	if written.ErrorDetail == "" {
		t.Error("error detail must be recorded")
	}
	if fx.notifier.errors != 1 {
		t.Errorf("error notifications = %d", fx.notifier.errors)
	}
}

func TestDrainMissingProductBecomesDraft(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = catalog.Job{
		Row:               2,
		ExpectedWork:      "原作A",
		ExpectedCharacter: "キャラA",
		SourceURL:         "https://market.example/detail/?cid=d_404404",
	}
	fx.dedup.rows["d_404404"] = []int{2}
	o := fx.orchestrator(t)

	summary, err := o.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if summary.Drafted != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if fx.market.detailCalls != 1 {
		t.Errorf("detail calls = %d, want 1 (not found is permanent)", fx.market.detailCalls)
	}
	written := fx.store.writes[0]
	if written.Status != catalog.StatusDraft {
		t.Errorf("status = %q", written.Status)
	}
}

func TestExpandAppendsUnseenListings(t *testing.T) {
	fx := newFixture()
	fx.store.keywords = []catalog.Keyword{
		{Row: 2, Active: true, Keyword: "検索語", ExpectedWork: "原作K", ExpectedCharacter: "キャラK"},
	}
	fx.market.searches["検索語"] = []market.Listing{
		{Identifier: "d_111111", Title: "既知", URL: "https://market.example/detail/?cid=d_111111"},
		{Identifier: "d_333333", Title: "新作", URL: "https://market.example/detail/?cid=d_333333"},
	}
	fx.dedup.rows["d_111111"] = []int{2}
	o := fx.orchestrator(t)

	summary, err := o.Expand(context.Background())
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if summary.Appended != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(fx.store.appends) != 1 {
		t.Fatalf("appends = %d", len(fx.store.appends))
	}
	appended := fx.store.appends[0]
	if appended.ExpectedWork != "原作K" || appended.ExpectedCharacter != "キャラK" {
		t.Errorf("keyword expectations not carried: %q / %q", appended.ExpectedWork, appended.ExpectedCharacter)
	}
	if appended.SourceURL != "https://market.example/detail/?cid=d_333333" {
		t.Errorf("source url = %q", appended.SourceURL)
	}
	if fx.dedup.invalidated == 0 {
		t.Error("append must invalidate the dedup index")
	}
	if len(fx.store.markedResults) != 1 || fx.store.markedResults[0] != "1件追加" {
		t.Errorf("keyword result = %v", fx.store.markedResults)
	}
}

func TestExpandPrunesSupersededDuplicates(t *testing.T) {
	fx := newFixture()
	fx.store.keywords = []catalog.Keyword{{Row: 2, Active: true, Keyword: "検索語"}}
	fx.store.jobs[2] = catalog.Job{
		Row:       2,
		RawStatus: "予約投稿",
		Status:    catalog.StatusScheduled,
		SourceURL: "https://market.example/detail/?cid=d_111111",
	}
	fx.store.jobs[3] = catalog.Job{
		Row:       3,
		SourceURL: "https://market.example/detail/?cid=d_111111",
	}
	o := fx.orchestrator(t)

	if _, err := o.Expand(context.Background()); err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if len(fx.store.deleted) != 1 || fx.store.deleted[0] != 3 {
		t.Fatalf("deleted rows = %v, want [3]", fx.store.deleted)
	}
	if _, stillThere := fx.store.jobs[2]; !stillThere {
		t.Error("resolved row must survive pruning")
	}
}

func TestPlanDayLaysOutSlotLadder(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.store.jobs[3] = fx.productJob(3, "d_222222", "原作B", "キャラB")
	o := fx.orchestrator(t)

	summary, err := o.PlanDay(context.Background())
	if err != nil {
		t.Fatalf("PlanDay returned error: %v", err)
	}
	if summary.Scheduled != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	first := fx.publisher.scheduled[0].ScheduledAt
	second := fx.publisher.scheduled[1].ScheduledAt
	wantFirst := fx.now.Add(30 * time.Minute)
	if !first.Equal(wantFirst) {
		t.Errorf("first slot = %v, want %v", first, wantFirst)
	}
	if got := second.Sub(first); got != 30*time.Minute {
		t.Errorf("ladder gap = %v, want 30m", got)
	}
}

func TestPlanDaySlotsSurviveDrafts(t *testing.T) {
	fx := newFixture()
	fx.store.jobs[2] = fx.productJob(2, "d_111111", "原作A", "キャラA")
	fx.store.jobs[3] = fx.productJob(3, "d_222222", "原作B", "キャラB")
	// First row draws a mismatch so it drafts instead of scheduling.
	fx.ai.textResp = `{"judgement_result":"相違","correct_original_work":"別作品","correct_character_name":"別キャラ"}`
	o := fx.orchestrator(t)

	if _, err := o.PlanDay(context.Background()); err != nil {
		t.Fatalf("PlanDay returned error: %v", err)
	}
	// Both rows mismatch with the same response, so nothing scheduled; the
	// point is that Take was never consumed by the drafts.
	if len(fx.publisher.scheduled) != 0 {
		t.Fatalf("scheduled = %d", len(fx.publisher.scheduled))
	}
	if len(fx.publisher.drafted) != 2 {
		t.Fatalf("drafted = %d", len(fx.publisher.drafted))
	}
}

func TestPlanDayTopsUpFromFeed(t *testing.T) {
	fx := newFixture()
	fx.cfg.Scheduler.MaxSlotsPerDay = 2
	url := "https://market.example/detail/?cid=d_555555"
	fx.market.latest = []market.Listing{{Identifier: "d_555555", Title: "新着", URL: url}}
	fx.market.details[url] = market.Details{
		Identifier:  "d_555555",
		Title:       "新着",
		Description: "説明",
		Circle:      "サークルY",
		URL:         url,
		MainImage:   "https://img.example/d_555555.jpg",
	}
	fx.ai.textResp = `{"原作名":"原作Z","キャラクター名リスト":["キャラZ"],"確信度":0.9}`
	o := fx.orchestrator(t)

	summary, err := o.PlanDay(context.Background())
	if err != nil {
		t.Fatalf("PlanDay returned error: %v", err)
	}
	if summary.Appended != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Scheduled != 1 {
		t.Fatalf("feed listing should schedule, summary = %+v", summary)
	}
	written := fx.store.writes[len(fx.store.writes)-1]
	if written.ExpectedWork != "原作Z" {
		t.Errorf("suggested work not adopted: %q", written.ExpectedWork)
	}
}

func TestNewValidatesRequiredDeps(t *testing.T) {
	cfg := config.Default()
	if _, err := New(&cfg, Deps{}, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing deps")
	}
	if _, err := New(nil, Deps{}, logging.NewNop()); err == nil {
		t.Fatal("expected error for nil config")
	}
}
