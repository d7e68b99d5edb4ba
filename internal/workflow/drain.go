package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scribe/internal/catalog"
	"scribe/internal/enrichcache"
	"scribe/internal/logging"
	"scribe/internal/market"
	"scribe/internal/publish"
	"scribe/internal/services"
)

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeScheduled
	outcomeDrafted
	outcomeDuplicate
	outcomeFailed
)

// Drain processes every unprocessed backlog row, one at a time, assigning
// publish slots from the rolling scheduler.
func (o *Orchestrator) Drain(ctx context.Context) (RunSummary, error) {
	runStart := o.now()
	summary := RunSummary{Mode: "drain"}
	ctx = services.WithMode(ctx, summary.Mode)

	jobs, err := o.store.Unprocessed(ctx, o.cfg.Workflow.MaxJobsPerRun)
	if err != nil {
		return summary, services.Wrap(services.ErrExternalService, summary.Mode, "list unprocessed", "read backlog", err)
	}
	if len(jobs) == 0 {
		o.logger.Info("backlog empty, nothing to drain")
		summary.Duration = o.now().Sub(runStart)
		return summary, nil
	}

	if err := o.primeScheduler(ctx); err != nil {
		return summary, err
	}

	_ = o.notifier.NotifyRunStarted(ctx, summary.Mode, len(jobs))
	o.logger.Info("drain run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("jobs", len(jobs)))

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		result := o.processJob(ctx, job, func() (time.Time, bool) {
			return o.scheduler.Next(o.now()), true
		})
		summary.record(result)
	}

	summary.Duration = o.now().Sub(runStart)
	_ = o.notifier.NotifyRunCompleted(ctx, summary.Mode, summary.Processed-summary.Failed, summary.Failed, summary.Duration)
	o.logger.Info("drain run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("processed", summary.Processed),
		logging.Int("scheduled", summary.Scheduled),
		logging.Int("drafted", summary.Drafted),
		logging.Int("duplicates", summary.Duplicates),
		logging.Int("failed", summary.Failed),
		logging.Duration("run_duration", summary.Duration))
	return summary, ctx.Err()
}

func (s *RunSummary) record(result outcome) {
	if result == outcomeSkipped {
		s.Skipped++
		return
	}
	s.Processed++
	switch result {
	case outcomeScheduled:
		s.Scheduled++
	case outcomeDrafted:
		s.Drafted++
	case outcomeDuplicate:
		s.Duplicates++
	case outcomeFailed:
		s.Failed++
	}
}

// primeScheduler folds externally known publish times into the scheduler so
// new slots land after everything already committed.
func (o *Orchestrator) primeScheduler(ctx context.Context) error {
	now := o.now()
	if last, ok, err := o.store.LastScheduledAt(ctx, now); err != nil {
		return services.Wrap(services.ErrExternalService, "schedule", "read sheet slots", "determine last scheduled slot", err)
	} else if ok {
		o.scheduler.Observe(last)
	}
	remote, err := o.publisher.MostRecentScheduledTime(ctx)
	if err != nil {
		return services.Wrap(services.ErrExternalService, "schedule", "read publisher slots", "determine last scheduled slot", err)
	}
	if !remote.IsZero() {
		o.scheduler.Observe(remote)
	}
	return nil
}

// processJob runs one row through the full pipeline. takeSlot yields the
// publish slot and is only consulted when the row actually schedules.
func (o *Orchestrator) processJob(ctx context.Context, job catalog.Job, takeSlot func() (time.Time, bool)) outcome {
	requestID := uuid.NewString()
	ctx = services.WithJobRow(services.WithRequestID(ctx, requestID), job.Row)
	logger := logging.WithContext(ctx, o.logger)

	// Re-read the row right before mutating anything; the sheet is shared
	// with human operators and slots can change under us.
	fresh, err := o.store.Refresh(ctx, job.Row)
	if err != nil {
		o.failJob(ctx, logger, job, services.Wrap(services.ErrExternalService, "refresh", "reload row", "re-read row before processing", err))
		return outcomeFailed
	}
	if !fresh.Unprocessed() {
		logger.Info("row changed since listing, skipping",
			logging.String("status", string(fresh.Status)))
		return outcomeSkipped
	}

	identifier := fresh.Identifier()
	logger = logger.With(logging.String(logging.FieldIdentifier, identifier))

	if identifier == "" {
		verr := services.Wrap(services.ErrValidation, "validate", "extract identifier", "ソースURLから識別子を取得できず", nil)
		return o.draftJob(ctx, logger, fresh, "", "ソースURLから識別子を取得できず", verr)
	}

	if reason, excluded := o.prefilter.Match(fresh.ExpectedWork); excluded {
		verr := services.Wrap(services.ErrValidation, "prefilter", "match exclusion rules", reason, nil)
		return o.draftJob(ctx, logger, fresh, "", reason, verr)
	}

	rows, err := o.dedup.Rows(ctx, identifier)
	if err != nil {
		o.failJob(ctx, logger, fresh, services.Wrap(services.ErrExternalService, "dedup", "query index", "check duplicate identifiers", err))
		return outcomeFailed
	}
	// The earliest row holding an identifier stays live; only later copies
	// are demoted, so a product shared by several rows is still published
	// exactly once.
	for _, row := range rows {
		if row < fresh.Row {
			return o.duplicateJob(ctx, logger, fresh, identifier, row)
		}
	}

	var details market.Details
	err = o.withRetry(ctx, logger, "product details", func() error {
		var derr error
		details, derr = o.market.ProductDetails(ctx, fresh.SourceURL)
		return derr
	})
	if err != nil {
		if errors.Is(err, market.ErrProductNotFound) {
			reason := "商品ページが見つからず: " + identifier
			verr := services.Wrap(services.ErrValidation, "scrape", "fetch product", reason, err)
			return o.draftJob(ctx, logger, fresh, "", reason, verr)
		}
		o.failJob(ctx, logger, fresh, services.Wrap(services.ErrExternalService, "scrape", "fetch product", "load product details", err))
		return outcomeFailed
	}
	if err := details.Validate(); err != nil {
		reason := "商品情報の不足: " + err.Error()
		verr := services.Wrap(services.ErrValidation, "scrape", "validate product", reason, err)
		return o.draftJob(ctx, logger, fresh, details.Title, reason, verr)
	}

	// A title that names a known franchise other than the expected one is a
	// hard conflict; park it for review before spending AI calls on it.
	if reason, conflict := o.prefilter.Conflict(details.Title, fresh.ExpectedWork); conflict {
		verr := services.Wrap(services.ErrValidation, "prefilter", "detect title conflict", reason, nil)
		return o.draftJob(ctx, logger, fresh, details.Title, reason, verr)
	}

	raw, err := o.analyze(ctx, logger, identifier, fresh, details)
	if err != nil {
		o.failJob(ctx, logger, fresh, err)
		return outcomeFailed
	}

	verdict := o.reconciler.Reconcile(raw, fresh.ExpectedWork, fresh.ExpectedCharacter)
	logger.Info("entities reconciled",
		logging.String("source", verdict.Source),
		logging.Bool("match", verdict.Match),
		logging.String("work", verdict.Work))

	title := strings.TrimSpace(fresh.Title)
	if title == "" {
		title = details.Title
	}
	slug := slugFor(identifier)

	existing, err := o.publisher.FindBySlug(ctx, slug)
	if err != nil {
		o.failJob(ctx, logger, fresh, services.Wrap(services.ErrExternalService, "publish", "find by slug", "check existing posts", err))
		return outcomeFailed
	}
	if existing != nil {
		return o.alreadyPublished(ctx, logger, fresh, identifier, existing)
	}

	if !verdict.Match {
		return o.draftJobWithVerdict(ctx, logger, fresh, details, verdict.Work, verdict.Character(), title, slug, verdict.Reason)
	}

	slot, ok := takeSlot()
	if !ok {
		logger.Info("no publish slots remaining, leaving row for next run")
		return outcomeSkipped
	}

	// Publishing is never retried: a failed call may still have created the
	// post, and a second attempt would double-publish.
	post, err := o.publisher.SchedulePost(ctx, publish.Draft{
		Title:       title,
		Content:     renderContent(details, verdict.Work, verdict.Characters),
		Slug:        slug,
		ScheduledAt: slot,
	})
	if err != nil {
		o.failJob(ctx, logger, fresh, services.Wrap(services.ErrExternalService, "publish", "schedule post", "create scheduled post", err))
		return outcomeFailed
	}

	fresh.Status = catalog.StatusScheduled
	fresh.RawStatus = string(catalog.StatusScheduled)
	fresh.ExpectedWork = verdict.Work
	fresh.ExpectedCharacter = verdict.Character()
	fresh.Title = title
	fresh.ScheduledAt = catalog.FormatSlot(slot)
	fresh.PublishedURL = post.URL
	fresh.PublishedLabel = title
	fresh.LastProcessedAt = o.now().Format(stampLayout)
	fresh.ErrorDetail = ""
	if err := o.store.WriteJob(ctx, fresh); err != nil {
		o.failJob(ctx, logger, fresh, services.Wrap(services.ErrExternalService, "persist", "write row", "record scheduled job", err))
		return outcomeFailed
	}

	logger.Info("job scheduled",
		logging.String(logging.FieldEventType, "job_scheduled"),
		logging.String("slot", catalog.FormatSlot(slot)),
		logging.String("post_url", post.URL))
	_ = o.notifier.NotifyJobScheduled(ctx, title, slot)
	return outcomeScheduled
}

// analyze obtains the raw AI response, preferring the cache, then the text
// facet, then the image facet. Facet failures degrade instead of aborting;
// the reconciler falls back to operator values on an empty response.
func (o *Orchestrator) analyze(ctx context.Context, logger *slog.Logger, identifier string, job catalog.Job, details market.Details) (string, error) {
	fingerprint := enrichcache.Fingerprint(details.Title, details.Description, job.ExpectedWork, job.ExpectedCharacter)
	if o.cache != nil {
		if cached, found, err := o.cache.Lookup(ctx, identifier, fingerprint); err != nil {
			logger.Warn("cache lookup failed", logging.Error(err))
		} else if found {
			logger.Info("ai response served from cache")
			return cached, nil
		}
	}

	var textResp, imageResp string
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := o.withRetry(groupCtx, logger, "suggest entities", func() error {
			var serr error
			textResp, serr = o.ai.SuggestEntities(groupCtx, details.Title, details.Description, job.ExpectedWork, job.ExpectedCharacter)
			return serr
		})
		if err != nil {
			logger.Warn("text analysis failed, degrading",
				logging.String(logging.FieldStage, "suggest"),
				logging.Error(err))
		}
		return nil
	})
	if details.MainImage != "" {
		group.Go(func() error {
			resp, err := o.ai.AnalyzeImage(groupCtx, details.MainImage, job.ExpectedWork, job.ExpectedCharacter)
			if err != nil {
				logger.Warn("image analysis failed, degrading",
					logging.String(logging.FieldStage, "image"),
					logging.Error(err))
				return nil
			}
			imageResp = resp
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return "", services.Wrap(services.ErrExternalService, "analyze", "run ai facets", "collect ai analysis", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw := textResp
	if raw == "" {
		raw = imageResp
	}
	if raw != "" && o.cache != nil {
		if err := o.cache.Store(ctx, identifier, fingerprint, raw); err != nil {
			logger.Warn("cache store failed", logging.Error(err))
		}
	}
	return raw, nil
}

func (o *Orchestrator) draftJob(ctx context.Context, logger *slog.Logger, job catalog.Job, title, reason string, cause error) outcome {
	job.Status = services.FailureStatus(cause)
	job.RawStatus = string(job.Status)
	if title = strings.TrimSpace(title); title != "" && strings.TrimSpace(job.Title) == "" {
		job.Title = title
	}
	job.ScheduledAt = ""
	job.LastProcessedAt = o.now().Format(stampLayout)
	job.ErrorDetail = reason
	if err := o.store.WriteJob(ctx, job); err != nil {
		o.failJob(ctx, logger, job, services.Wrap(services.ErrExternalService, "persist", "write row", "record draft outcome", err))
		return outcomeFailed
	}
	logger.Info("job drafted",
		logging.String(logging.FieldEventType, "job_drafted"),
		logging.String("reason", reason))
	_ = o.notifier.NotifyJobDrafted(ctx, job.Title, reason)
	return outcomeDrafted
}

// draftJobWithVerdict saves the post as a draft on the publisher and records
// the corrected entities on the row for operator review.
func (o *Orchestrator) draftJobWithVerdict(ctx context.Context, logger *slog.Logger, job catalog.Job, details market.Details, work, character, title, slug, reason string) outcome {
	post, err := o.publisher.SaveDraft(ctx, publish.Draft{
		Title:   title,
		Content: renderContent(details, work, []string{character}),
		Slug:    slug,
	})
	if err != nil {
		o.failJob(ctx, logger, job, services.Wrap(services.ErrExternalService, "publish", "save draft", "create draft post", err))
		return outcomeFailed
	}

	job.Status = catalog.StatusDraft
	job.RawStatus = string(catalog.StatusDraft)
	job.ExpectedWork = work
	job.ExpectedCharacter = character
	job.Title = title
	job.ScheduledAt = ""
	job.PublishedURL = post.URL
	job.PublishedLabel = title
	job.LastProcessedAt = o.now().Format(stampLayout)
	job.ErrorDetail = reason
	if err := o.store.WriteJob(ctx, job); err != nil {
		o.failJob(ctx, logger, job, services.Wrap(services.ErrExternalService, "persist", "write row", "record draft outcome", err))
		return outcomeFailed
	}
	logger.Info("job drafted for review",
		logging.String(logging.FieldEventType, "job_drafted"),
		logging.String("reason", reason))
	_ = o.notifier.NotifyJobDrafted(ctx, title, reason)
	return outcomeDrafted
}

func (o *Orchestrator) duplicateJob(ctx context.Context, logger *slog.Logger, job catalog.Job, identifier string, otherRow int) outcome {
	job.Status = catalog.StatusDuplicate
	job.RawStatus = string(catalog.StatusDuplicate)
	job.ScheduledAt = ""
	job.LastProcessedAt = o.now().Format(stampLayout)
	job.ErrorDetail = fmt.Sprintf("重複投稿: 行%dと同一の識別子 (%s)", otherRow, identifier)
	if err := o.store.WriteJob(ctx, job); err != nil {
		o.failJob(ctx, logger, job, services.Wrap(services.ErrExternalService, "persist", "write row", "record duplicate outcome", err))
		return outcomeFailed
	}
	logger.Info("duplicate row skipped",
		logging.String(logging.FieldEventType, "job_duplicate"),
		logging.Int("duplicate_of_row", otherRow))
	_ = o.notifier.NotifyDuplicateSkipped(ctx, identifier)
	return outcomeDuplicate
}

// alreadyPublished marks a row whose product already has a post on the
// publisher, adopting the existing post URL.
func (o *Orchestrator) alreadyPublished(ctx context.Context, logger *slog.Logger, job catalog.Job, identifier string, existing *publish.Post) outcome {
	job.Status = catalog.StatusDuplicate
	job.RawStatus = string(catalog.StatusDuplicate)
	job.ScheduledAt = ""
	job.PublishedURL = existing.URL
	job.LastProcessedAt = o.now().Format(stampLayout)
	job.ErrorDetail = "重複投稿: 既存の投稿あり (" + identifier + ")"
	if err := o.store.WriteJob(ctx, job); err != nil {
		o.failJob(ctx, logger, job, services.Wrap(services.ErrExternalService, "persist", "write row", "record duplicate outcome", err))
		return outcomeFailed
	}
	logger.Info("post already exists, marking duplicate",
		logging.String(logging.FieldEventType, "job_duplicate"),
		logging.String("post_url", existing.URL))
	_ = o.notifier.NotifyDuplicateSkipped(ctx, identifier)
	return outcomeDuplicate
}

func (o *Orchestrator) failJob(ctx context.Context, logger *slog.Logger, job catalog.Job, cause error) {
	logger.Error("job failed",
		logging.String(logging.FieldEventType, "job_failed"),
		logging.Error(cause))
	_ = o.notifier.NotifyError(ctx, cause, fmt.Sprintf("row %d", job.Row))

	job.Status = services.FailureStatus(cause)
	job.RawStatus = string(job.Status)
	job.LastProcessedAt = o.now().Format(stampLayout)
	job.ErrorDetail = cause.Error()
	if err := o.store.WriteJob(ctx, job); err != nil {
		logger.Error("failed to persist error state",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "row will be retried on the next run"))
	}
}

func slugFor(identifier string) string {
	return strings.ReplaceAll(strings.ToLower(identifier), "_", "-")
}

// renderContent builds the post body from the validated entities and the
// product listing.
func renderContent(details market.Details, work string, characters []string) string {
	var b strings.Builder
	if details.MainImage != "" {
		fmt.Fprintf(&b, "<p><img src=%q alt=%q /></p>\n", details.MainImage, details.Title)
	}
	if details.Description != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", details.Description)
	}
	if work != "" {
		fmt.Fprintf(&b, "<p>原作: %s</p>\n", work)
	}
	names := make([]string, 0, len(characters))
	for _, name := range characters {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, "<p>キャラクター: %s</p>\n", strings.Join(names, "、"))
	}
	by := details.Circle
	if by == "" {
		by = details.Author
	}
	if by != "" {
		fmt.Fprintf(&b, "<p>サークル: %s</p>\n", by)
	}
	for _, sample := range details.SampleURLs {
		fmt.Fprintf(&b, "<p><img src=%q /></p>\n", sample)
	}
	if details.URL != "" {
		fmt.Fprintf(&b, "<p><a href=%q>%s</a></p>\n", details.URL, details.Title)
	}
	return b.String()
}
