package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"scribe/internal/catalog"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/market"
	"scribe/internal/notifications"
	"scribe/internal/publish"
	"scribe/internal/reconcile"
	"scribe/internal/schedule"
)

// Catalog is the backlog surface the orchestrator drives.
type Catalog interface {
	Jobs(ctx context.Context) ([]catalog.Job, error)
	Unprocessed(ctx context.Context, max int) ([]catalog.Job, error)
	Refresh(ctx context.Context, rowNumber int) (catalog.Job, error)
	WriteJob(ctx context.Context, job catalog.Job) error
	AppendJobs(ctx context.Context, jobs []catalog.Job) error
	DeleteJobRows(ctx context.Context, rowNumbers []int) error
	LastScheduledAt(ctx context.Context, now time.Time) (time.Time, bool, error)
	NextKeywords(ctx context.Context, max int, now time.Time) ([]catalog.Keyword, error)
	MarkKeywordProcessed(ctx context.Context, kw catalog.Keyword, result string, now time.Time) error
}

// Deduper answers whether a product identifier already exists in the backlog.
type Deduper interface {
	Contains(ctx context.Context, id string) (bool, error)
	ContainsBatch(ctx context.Context, ids []string) (map[string]bool, error)
	Rows(ctx context.Context, id string) ([]int, error)
	Invalidate()
}

// Market combines search feeds with per-product detail lookup.
type Market interface {
	SearchByKeyword(ctx context.Context, keyword string, limit int) ([]market.Listing, error)
	LatestProducts(ctx context.Context, limit int) ([]market.Listing, error)
	ProductDetails(ctx context.Context, url string) (market.Details, error)
}

// Suggester is the AI surface used for entity analysis.
type Suggester interface {
	SuggestEntities(ctx context.Context, title, description, expectedWork, expectedChar string) (string, error)
	AnalyzeImage(ctx context.Context, imageURL, expectedWork, expectedChar string) (string, error)
}

// ResponseCache holds prior AI responses keyed by identifier and prompt
// fingerprint.
type ResponseCache interface {
	Lookup(ctx context.Context, identifier, fingerprint string) (string, bool, error)
	Store(ctx context.Context, identifier, fingerprint, response string) error
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Store      Catalog
	Dedup      Deduper
	Reconciler *reconcile.Reconciler
	Scheduler  *schedule.Scheduler
	Market     Market
	AI         Suggester
	Publisher  publish.Target
	Cache      ResponseCache
	Notifier   notifications.Service
}

// Orchestrator walks the backlog and turns rows into scheduled or drafted
// posts.
type Orchestrator struct {
	cfg        *config.Config
	store      Catalog
	dedup      Deduper
	reconciler *reconcile.Reconciler
	scheduler  *schedule.Scheduler
	market     Market
	ai         Suggester
	publisher  publish.Target
	cache      ResponseCache
	notifier   notifications.Service
	logger     *slog.Logger
	prefilter  *prefilter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs an orchestrator. Store, dedup index, market, AI, and
// publisher are required; the rest default sensibly.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("orchestrator requires config")
	}
	if deps.Store == nil || deps.Dedup == nil || deps.Market == nil || deps.AI == nil || deps.Publisher == nil {
		return nil, errors.New("orchestrator requires store, dedup, market, ai, and publisher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")

	reconciler := deps.Reconciler
	if reconciler == nil {
		reconciler = reconcile.New(logger)
	}
	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = schedule.New(time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	return &Orchestrator{
		cfg:        cfg,
		store:      deps.Store,
		dedup:      deps.Dedup,
		reconciler: reconciler,
		scheduler:  scheduler,
		market:     deps.Market,
		ai:         deps.AI,
		publisher:  deps.Publisher,
		cache:      deps.Cache,
		notifier:   notifier,
		logger:     logger,
		prefilter:  newPrefilter(cfg.Prefilter.Rules),
		now:        time.Now,
		sleep:      sleepContext,
	}, nil
}

// RunSummary describes what one pipeline run accomplished.
type RunSummary struct {
	Mode       string
	Processed  int
	Scheduled  int
	Drafted    int
	Duplicates int
	Skipped    int
	Failed     int
	Appended   int
	Duration   time.Duration
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const stampLayout = "2006/01/02 15:04"
