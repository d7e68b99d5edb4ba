package services_test

import (
	"errors"
	"strings"
	"testing"

	"scribe/internal/catalog"
	"scribe/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalService, "scrape", "fetch", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"scrape", "fetch", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestFailureStatusMapping(t *testing.T) {
	dupErr := services.Wrap(services.ErrDuplicate, "publish", "check", "slug exists", nil)
	if status := services.FailureStatus(dupErr); status != catalog.StatusDuplicate {
		t.Fatalf("expected duplicate status, got %s", status)
	}

	validationErr := services.Wrap(services.ErrValidation, "prefilter", "rules", "work excluded", nil)
	if status := services.FailureStatus(validationErr); status != catalog.StatusDraft {
		t.Fatalf("expected draft for validation error, got %s", status)
	}

	transientErr := services.Wrap(services.ErrTransient, "sheet", "read", "read failed", errors.New("io"))
	if status := services.FailureStatus(transientErr); status != catalog.StatusError {
		t.Fatalf("expected error status for transient failure, got %s", status)
	}

	if status := services.FailureStatus(nil); status != catalog.StatusError {
		t.Fatalf("expected error status for nil error, got %s", status)
	}
}

func TestRetryable(t *testing.T) {
	if !services.Retryable(services.Wrap(services.ErrTimeout, "market", "search", "", nil)) {
		t.Fatal("timeouts should be retryable")
	}
	if !services.Retryable(errors.New("connection reset")) {
		t.Fatal("unclassified transport failures should be retryable")
	}
	if services.Retryable(services.Wrap(services.ErrDuplicate, "publish", "create", "", nil)) {
		t.Fatal("duplicates must never be retried")
	}
	if services.Retryable(services.Wrap(services.ErrValidation, "scrape", "validate", "", nil)) {
		t.Fatal("validation failures must never be retried")
	}
	if services.Retryable(nil) {
		t.Fatal("nil is not retryable")
	}
}
