package services

import "context"

type contextKey string

const (
	jobRowKey    contextKey = "job_row"
	stageKey     contextKey = "stage"
	modeKey      contextKey = "mode"
	requestIDKey contextKey = "request_id"
)

// WithJobRow annotates context with the sheet row the job lives on.
func WithJobRow(ctx context.Context, row int) context.Context {
	return context.WithValue(ctx, jobRowKey, row)
}

// JobRowFromContext extracts the job row number if present.
func JobRowFromContext(ctx context.Context) (int, bool) {
	if v, ok := ctx.Value(jobRowKey).(int); ok && v > 0 {
		return v, true
	}
	return 0, false
}

// WithStage annotates context with the processing stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(stageKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithMode annotates context with the run mode (drain/expand/plan).
func WithMode(ctx context.Context, mode string) context.Context {
	if mode == "" {
		return ctx
	}
	return context.WithValue(ctx, modeKey, mode)
}

// ModeFromContext returns the run mode if present.
func ModeFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(modeKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
