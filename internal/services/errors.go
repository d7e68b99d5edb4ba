package services

import (
	"errors"
	"fmt"
	"strings"

	"scribe/internal/catalog"
)

var (
	ErrExternalService = errors.New("external service error")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
	ErrDuplicate       = errors.New("duplicate content")
	ErrDataQuality     = errors.New("incomplete source data")
)

// Wrap builds an error message that includes run context while tagging it
// with the provided marker for later status classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a processing error to the status the job row should
// carry afterwards. Duplicates get their own state so operators can tell
// them from real failures; validation conflicts park the row as a draft.
func FailureStatus(err error) catalog.Status {
	switch {
	case errors.Is(err, ErrDuplicate):
		return catalog.StatusDuplicate
	case errors.Is(err, ErrValidation):
		return catalog.StatusDraft
	default:
		return catalog.StatusError
	}
}

// Retryable reports whether an error is worth retrying for idempotent
// operations. Unclassified and transient/timeout failures qualify; anything
// marked as a validation, duplicate, configuration, not-found, or
// data-quality problem will fail the same way again.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	for _, marker := range []error{ErrValidation, ErrDuplicate, ErrConfiguration, ErrNotFound, ErrDataQuality} {
		if errors.Is(err, marker) {
			return false
		}
	}
	return true
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
