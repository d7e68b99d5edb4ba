package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scribe/internal/config"
)

const defaultHTTPTimeout = 30 * time.Second

// Post is a draft or scheduled post on the publishing site.
type Post struct {
	ID    int
	URL   string
	Slug  string
	Date  time.Time
	State string
}

// Draft is the content handed to the publisher.
type Draft struct {
	Title       string
	Content     string
	Slug        string
	ScheduledAt time.Time
}

// Target is the publishing surface the workflow consumes.
type Target interface {
	// SchedulePost creates a post scheduled for draft.ScheduledAt.
	SchedulePost(ctx context.Context, draft Draft) (Post, error)
	// SaveDraft creates an unscheduled draft.
	SaveDraft(ctx context.Context, draft Draft) (Post, error)
	// FindBySlug returns the existing post with the given slug, if any.
	FindBySlug(ctx context.Context, slug string) (*Post, error)
	// MostRecentScheduledTime returns the latest future-dated publish time,
	// or the zero time when nothing is scheduled.
	MostRecentScheduledTime(ctx context.Context) (time.Time, error)
}

// Client talks to a WordPress-compatible REST API.
type Client struct {
	baseURL     string
	username    string
	appPassword string
	httpClient  *http.Client
}

var _ Target = (*Client)(nil)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a publisher client from the shared settings.
func NewClient(cfg config.Publisher, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("publisher base url required")
	}
	if strings.TrimSpace(cfg.Username) == "" || strings.TrimSpace(cfg.AppPassword) == "" {
		return nil, errors.New("publisher credentials required")
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		username:    cfg.Username,
		appPassword: cfg.AppPassword,
		httpClient:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

const wpDateLayout = "2006-01-02T15:04:05"

// SchedulePost creates a future-dated post.
func (c *Client) SchedulePost(ctx context.Context, draft Draft) (Post, error) {
	if draft.ScheduledAt.IsZero() {
		return Post{}, errors.New("schedule post: scheduled time required")
	}
	return c.createPost(ctx, draft, "future")
}

// SaveDraft stores the post without scheduling it.
func (c *Client) SaveDraft(ctx context.Context, draft Draft) (Post, error) {
	return c.createPost(ctx, draft, "draft")
}

type postPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Slug    string `json:"slug,omitempty"`
	Status  string `json:"status"`
	Date    string `json:"date,omitempty"`
}

type postResponse struct {
	ID     int    `json:"id"`
	Link   string `json:"link"`
	Slug   string `json:"slug"`
	Status string `json:"status"`
	Date   string `json:"date"`
}

func (c *Client) createPost(ctx context.Context, draft Draft, status string) (Post, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return Post{}, errors.New("create post: title required")
	}
	payload := postPayload{
		Title:   draft.Title,
		Content: draft.Content,
		Slug:    draft.Slug,
		Status:  status,
	}
	if status == "future" {
		payload.Date = draft.ScheduledAt.Format(wpDateLayout)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Post{}, fmt.Errorf("create post: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wp-json/wp/v2/posts", bytes.NewReader(body))
	if err != nil {
		return Post{}, fmt.Errorf("create post: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.appPassword)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return Post{}, fmt.Errorf("create post: execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Post{}, fmt.Errorf("create post: api returned %d (latency=%v): %s", resp.StatusCode, latency, strings.TrimSpace(string(snippet)))
	}

	var created postResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return Post{}, fmt.Errorf("create post: decode response: %w", err)
	}
	return postFromResponse(created), nil
}

// FindBySlug looks for an existing post with the slug across publish states.
func (c *Client) FindBySlug(ctx context.Context, slug string) (*Post, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, errors.New("find by slug: slug required")
	}
	params := url.Values{}
	params.Set("slug", slug)
	params.Set("status", "publish,future,draft")
	posts, err := c.listPosts(ctx, params, "find by slug")
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}

// MostRecentScheduledTime returns the latest future publish date.
func (c *Client) MostRecentScheduledTime(ctx context.Context) (time.Time, error) {
	params := url.Values{}
	params.Set("status", "future")
	params.Set("orderby", "date")
	params.Set("order", "desc")
	params.Set("per_page", "1")
	posts, err := c.listPosts(ctx, params, "most recent scheduled time")
	if err != nil {
		return time.Time{}, err
	}
	if len(posts) == 0 {
		return time.Time{}, nil
	}
	return posts[0].Date, nil
}

func (c *Client) listPosts(ctx context.Context, params url.Values, op string) ([]Post, error) {
	endpoint := c.baseURL + "/wp-json/wp/v2/posts?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.SetBasicAuth(c.username, c.appPassword)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("%s: execute request (latency=%v): %w", op, latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: api returned %d (latency=%v): %s", op, resp.StatusCode, latency, strings.TrimSpace(string(snippet)))
	}

	var decoded []postResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	posts := make([]Post, 0, len(decoded))
	for _, entry := range decoded {
		posts = append(posts, postFromResponse(entry))
	}
	return posts, nil
}

func postFromResponse(entry postResponse) Post {
	date, _ := time.ParseInLocation(wpDateLayout, entry.Date, time.Local)
	return Post{
		ID:    entry.ID,
		URL:   entry.Link,
		Slug:  entry.Slug,
		Date:  date,
		State: entry.Status,
	}
}
