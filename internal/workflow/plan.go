package workflow

import (
	"context"
	"time"

	"scribe/internal/catalog"
	"scribe/internal/logging"
	"scribe/internal/schedule"
	"scribe/internal/services"
)

// PlanDay lays out a fixed ladder of publish slots and fills it from the
// backlog, topping the backlog up from the marketplace's latest-release feed
// when there are fewer unprocessed rows than slots. Slots are consumed only
// by rows that actually schedule, so drafts and duplicates never leave gaps.
func (o *Orchestrator) PlanDay(ctx context.Context) (RunSummary, error) {
	runStart := o.now()
	summary := RunSummary{Mode: "plan"}
	ctx = services.WithMode(ctx, summary.Mode)

	capacity := o.cfg.Scheduler.MaxSlotsPerDay
	if capacity < 1 {
		capacity = 1
	}
	interval := time.Duration(o.cfg.Scheduler.BatchIntervalMinutes) * time.Minute

	anchor, err := o.planAnchor(ctx, interval)
	if err != nil {
		return summary, err
	}
	plan := schedule.NewPlan(anchor, interval, capacity)

	jobs, err := o.store.Unprocessed(ctx, capacity)
	if err != nil {
		return summary, services.Wrap(services.ErrExternalService, summary.Mode, "list unprocessed", "read backlog", err)
	}
	if len(jobs) < capacity {
		added, err := o.fillFromFeed(ctx, capacity-len(jobs))
		if err != nil {
			o.logger.Warn("feed top-up failed, planning with backlog only", logging.Error(err))
		} else if added > 0 {
			summary.Appended = added
			jobs, err = o.store.Unprocessed(ctx, capacity)
			if err != nil {
				return summary, services.Wrap(services.ErrExternalService, summary.Mode, "list unprocessed", "re-read backlog", err)
			}
		}
	}
	if len(jobs) == 0 {
		o.logger.Info("nothing to plan")
		summary.Duration = o.now().Sub(runStart)
		return summary, nil
	}

	_ = o.notifier.NotifyRunStarted(ctx, summary.Mode, len(jobs))
	o.logger.Info("plan run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("jobs", len(jobs)),
		logging.Int("slots", capacity),
		logging.String("anchor", catalog.FormatSlot(anchor)))

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if plan.Remaining() == 0 {
			break
		}
		result := o.processJob(ctx, job, plan.Take)
		summary.record(result)
	}

	summary.Duration = o.now().Sub(runStart)
	_ = o.notifier.NotifyRunCompleted(ctx, summary.Mode, summary.Processed-summary.Failed, summary.Failed, summary.Duration)
	o.logger.Info("plan run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("processed", summary.Processed),
		logging.Int("scheduled", summary.Scheduled),
		logging.Int("slots_left", plan.Remaining()),
		logging.Duration("run_duration", summary.Duration))
	return summary, ctx.Err()
}

// planAnchor picks the first slot of the ladder: one interval past the
// latest publish time known to either the sheet or the publisher.
func (o *Orchestrator) planAnchor(ctx context.Context, interval time.Duration) (time.Time, error) {
	anchor := o.now()
	if last, ok, err := o.store.LastScheduledAt(ctx, anchor); err != nil {
		return time.Time{}, services.Wrap(services.ErrExternalService, "plan", "read sheet slots", "determine plan anchor", err)
	} else if ok && last.After(anchor) {
		anchor = last
	}
	remote, err := o.publisher.MostRecentScheduledTime(ctx)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrExternalService, "plan", "read publisher slots", "determine plan anchor", err)
	}
	if remote.After(anchor) {
		anchor = remote
	}
	return anchor.Add(interval), nil
}

// fillFromFeed appends unseen listings from the latest-release feed.
func (o *Orchestrator) fillFromFeed(ctx context.Context, want int) (int, error) {
	listings, err := o.market.LatestProducts(ctx, want*2)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalService, "plan", "latest products", "read release feed", err)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(listings))
	for _, listing := range listings {
		ids = append(ids, listing.Identifier)
	}
	seen, err := o.dedup.ContainsBatch(ctx, ids)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalService, "plan", "query index", "check duplicate identifiers", err)
	}

	jobs := make([]catalog.Job, 0, want)
	for _, listing := range listings {
		if seen[listing.Identifier] {
			continue
		}
		jobs = append(jobs, catalog.Job{
			Status:      catalog.StatusUnprocessed,
			SourceURL:   listing.URL,
			SourceLabel: listing.Title,
			Title:       listing.Title,
		})
		if len(jobs) == want {
			break
		}
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	if err := o.store.AppendJobs(ctx, jobs); err != nil {
		return 0, services.Wrap(services.ErrExternalService, "plan", "append rows", "append feed listings", err)
	}
	o.dedup.Invalidate()
	o.logger.Info("backlog topped up from release feed",
		logging.String(logging.FieldEventType, "feed_topup"),
		logging.Int("appended", len(jobs)))
	return len(jobs), nil
}
