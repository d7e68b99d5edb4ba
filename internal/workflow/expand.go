package workflow

import (
	"context"
	"fmt"

	"scribe/internal/catalog"
	"scribe/internal/logging"
	"scribe/internal/services"
)

// Expand picks due keywords, searches the marketplace for new products, and
// appends unseen listings to the backlog as unprocessed rows. It does not
// process the rows it adds; run Drain afterwards for that.
func (o *Orchestrator) Expand(ctx context.Context) (RunSummary, error) {
	runStart := o.now()
	summary := RunSummary{Mode: "expand"}
	ctx = services.WithMode(ctx, summary.Mode)

	keywords, err := o.store.NextKeywords(ctx, o.cfg.Workflow.MaxKeywordsPerRun, o.now())
	if err != nil {
		return summary, services.Wrap(services.ErrExternalService, summary.Mode, "list keywords", "read keyword sheet", err)
	}
	if len(keywords) == 0 {
		o.logger.Info("no keywords due for expansion")
		summary.Duration = o.now().Sub(runStart)
		return summary, nil
	}

	if removed, err := o.pruneDuplicateRows(ctx); err != nil {
		return summary, err
	} else if removed > 0 {
		o.logger.Info("removed superseded duplicate rows", logging.Int("rows", removed))
	}

	_ = o.notifier.NotifyRunStarted(ctx, summary.Mode, len(keywords))
	o.logger.Info("expand run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("keywords", len(keywords)))

	for _, kw := range keywords {
		if ctx.Err() != nil {
			break
		}
		added, err := o.expandKeyword(ctx, kw)
		summary.Processed++
		if err != nil {
			summary.Failed++
			o.logger.Error("keyword expansion failed",
				logging.String(logging.FieldKeyword, kw.Keyword),
				logging.Error(err))
			_ = o.notifier.NotifyError(ctx, err, "keyword "+kw.Keyword)
			continue
		}
		summary.Appended += added
	}

	summary.Duration = o.now().Sub(runStart)
	_ = o.notifier.NotifyRunCompleted(ctx, summary.Mode, summary.Processed-summary.Failed, summary.Failed, summary.Duration)
	o.logger.Info("expand run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("keywords", summary.Processed),
		logging.Int("appended", summary.Appended),
		logging.Int("failed", summary.Failed),
		logging.Duration("run_duration", summary.Duration))
	return summary, ctx.Err()
}

// expandKeyword searches one keyword and appends every listing whose
// identifier the backlog has not seen.
func (o *Orchestrator) expandKeyword(ctx context.Context, kw catalog.Keyword) (int, error) {
	logger := o.logger.With(logging.String(logging.FieldKeyword, kw.Keyword))

	listings, err := o.market.SearchByKeyword(ctx, kw.Keyword, o.cfg.Workflow.MaxJobsPerRun)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalService, "expand", "search keyword", "search marketplace", err)
	}
	if len(listings) == 0 {
		logger.Info("keyword returned no listings")
		return 0, o.markKeyword(ctx, kw, "0件追加")
	}

	ids := make([]string, 0, len(listings))
	for _, listing := range listings {
		ids = append(ids, listing.Identifier)
	}
	seen, err := o.dedup.ContainsBatch(ctx, ids)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalService, "expand", "query index", "check duplicate identifiers", err)
	}

	jobs := make([]catalog.Job, 0, len(listings))
	for _, listing := range listings {
		if seen[listing.Identifier] {
			continue
		}
		jobs = append(jobs, catalog.Job{
			Status:            catalog.StatusUnprocessed,
			ExpectedWork:      kw.ExpectedWork,
			ExpectedCharacter: kw.ExpectedCharacter,
			SourceURL:         listing.URL,
			SourceLabel:       listing.Title,
			Title:             listing.Title,
		})
	}

	if len(jobs) > 0 {
		if err := o.store.AppendJobs(ctx, jobs); err != nil {
			return 0, services.Wrap(services.ErrExternalService, "expand", "append rows", "append new listings", err)
		}
		// New rows invalidate the identifier snapshot.
		o.dedup.Invalidate()
	}

	logger.Info("keyword expanded",
		logging.String(logging.FieldEventType, "keyword_expanded"),
		logging.Int("listings", len(listings)),
		logging.Int("appended", len(jobs)))
	return len(jobs), o.markKeyword(ctx, kw, fmt.Sprintf("%d件追加", len(jobs)))
}

func (o *Orchestrator) markKeyword(ctx context.Context, kw catalog.Keyword, result string) error {
	if err := o.store.MarkKeywordProcessed(ctx, kw, result, o.now()); err != nil {
		return services.Wrap(services.ErrExternalService, "expand", "mark keyword", "record keyword result", err)
	}
	return nil
}

// pruneDuplicateRows deletes later unprocessed rows that share an identifier
// with an earlier row. Rows an operator already resolved are left alone.
func (o *Orchestrator) pruneDuplicateRows(ctx context.Context) (int, error) {
	jobs, err := o.store.Jobs(ctx)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalService, "expand", "list rows", "read backlog", err)
	}

	firstRow := make(map[string]int)
	var doomed []int
	for _, job := range jobs {
		id := job.Identifier()
		if id == "" {
			continue
		}
		if _, exists := firstRow[id]; !exists {
			firstRow[id] = job.Row
			continue
		}
		if job.Unprocessed() {
			doomed = append(doomed, job.Row)
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	if err := o.store.DeleteJobRows(ctx, doomed); err != nil {
		return 0, services.Wrap(services.ErrExternalService, "expand", "delete rows", "remove duplicate rows", err)
	}
	o.dedup.Invalidate()
	return len(doomed), nil
}
