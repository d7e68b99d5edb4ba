package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"scribe/internal/logging"
	"scribe/internal/market"
	"scribe/internal/services"
)

const retryBaseDelay = time.Second

// withRetry runs fn up to the configured attempt count, backing off between
// tries. Publish calls must not go through here: a post that may have been
// created on the far side cannot be retried safely.
func (o *Orchestrator) withRetry(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	attempts := o.cfg.Workflow.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := retryBaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if errors.Is(lastErr, market.ErrProductNotFound) || !services.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		logger.Warn("operation failed, retrying",
			logging.String("operation", op),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(lastErr))
		if err := o.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
	return lastErr
}
