package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const userAgent = "Scribe-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyRunStarted(ctx context.Context, mode string, count int) error
	NotifyRunCompleted(ctx context.Context, mode string, processed, failed int, duration time.Duration) error
	NotifyJobScheduled(ctx context.Context, title string, slot time.Time) error
	NotifyJobDrafted(ctx context.Context, title, reason string) error
	NotifyDuplicateSkipped(ctx context.Context, identifier string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:   topic,
		client:     client,
		runEvents:  cfg.Notifications.Runs,
		errorPings: cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	runEvents  bool
	errorPings bool
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, mode string, count int) error {
	if !n.runEvents {
		return nil
	}
	mode = strings.TrimSpace(mode)
	data := payload{
		title:   "Scribe - Run Started",
		message: fmt.Sprintf("Started %s run with %d jobs", mode, count),
		tags:    []string{"scribe", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, mode string, processed, failed int, duration time.Duration) error {
	if !n.runEvents {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	mode = strings.TrimSpace(mode)
	var title, message string
	if failed == 0 {
		title = "Scribe - Run Complete"
		message = fmt.Sprintf("%s run complete: %d jobs processed in %s", mode, processed, durationText)
	} else {
		title = "Scribe - Run Complete (with errors)"
		message = fmt.Sprintf("%s run complete: %d succeeded, %d failed in %s", mode, processed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"scribe", "run", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobScheduled(ctx context.Context, title string, slot time.Time) error {
	if !n.runEvents {
		return nil
	}
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Scribe - Scheduled",
		message: fmt.Sprintf("Scheduled for %s: %s", slot.Format("01/02 15:04"), title),
		tags:    []string{"scribe", "job", "scheduled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobDrafted(ctx context.Context, title, reason string) error {
	if !n.runEvents {
		return nil
	}
	title = strings.TrimSpace(title)
	reason = strings.TrimSpace(reason)
	message := fmt.Sprintf("Saved as draft: %s", title)
	if reason != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, reason)
	}
	data := payload{
		title:   "Scribe - Draft Saved",
		message: message,
		tags:    []string{"scribe", "job", "draft"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDuplicateSkipped(ctx context.Context, identifier string) error {
	if !n.runEvents {
		return nil
	}
	identifier = strings.TrimSpace(identifier)
	data := payload{
		title:   "Scribe - Duplicate",
		message: fmt.Sprintf("Skipped already-published product: %s", identifier),
		tags:    []string{"scribe", "job", "duplicate"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errorPings {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Scribe - Error",
		message:  builder.String(),
		tags:     []string{"scribe", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Scribe - Test",
		message:  "Notification system test",
		tags:     []string{"scribe", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, string, int) error { return nil }
func (noopService) NotifyRunCompleted(context.Context, string, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyJobScheduled(context.Context, string, time.Time) error { return nil }
func (noopService) NotifyJobDrafted(context.Context, string, string) error      { return nil }
func (noopService) NotifyDuplicateSkipped(context.Context, string) error        { return nil }
func (noopService) NotifyError(context.Context, error, string) error            { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
