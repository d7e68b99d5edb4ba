package market

import (
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

const defaultHTTPTimeout = 15 * time.Second

// Client queries the marketplace affiliate API for product listings.
type Client struct {
	baseURL     string
	apiID       string
	affiliateID string
	httpClient  *http.Client
}

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

// NewClient constructs a marketplace client from the shared settings.
func NewClient(cfg config.Market, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("market base url required")
	}
	if strings.TrimSpace(cfg.APIID) == "" {
		return nil, errors.New("market api id required")
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiID:       cfg.APIID,
		affiliateID: cfg.AffiliateID,
		httpClient:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Listing is one search hit from the affiliate API.
type Listing struct {
	Identifier string
	Title      string
	URL        string
	ImageURL   string
	ReleasedAt time.Time
}

// SearchByKeyword returns the newest listings matching a keyword.
func (c *Client) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]Listing, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.New("keyword required")
	}
	params := url.Values{}
	params.Set("keyword", keyword)
	params.Set("sort", "date")
	return c.itemList(ctx, params, limit, "search by keyword")
}

// LatestProducts returns the most recently released listings.
func (c *Client) LatestProducts(ctx context.Context, limit int) ([]Listing, error) {
	params := url.Values{}
	params.Set("sort", "date")
	return c.itemList(ctx, params, limit, "latest products")
}

type itemListResponse struct {
	Result struct {
		Status int `json:"status"`
		Items  []struct {
			ContentID string `json:"content_id"`
			Title     string `json:"title"`
			URL       string `json:"URL"`
			ImageURL  struct {
				Large string `json:"large"`
				List  string `json:"list"`
			} `json:"imageURL"`
			Date string `json:"date"`
		} `json:"items"`
	} `json:"result"`
}

func (c *Client) itemList(ctx context.Context, params url.Values, limit int, op string) ([]Listing, error) {
	if limit <= 0 {
		limit = 10
	}
	params.Set("api_id", c.apiID)
	if c.affiliateID != "" {
		params.Set("affiliate_id", c.affiliateID)
	}
	params.Set("hits", fmt.Sprintf("%d", limit))
	params.Set("output", "json")

	endpoint := c.baseURL + "/ItemList?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}

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

	var decoded itemListResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if decoded.Result.Status != 0 && decoded.Result.Status != http.StatusOK {
		return nil, fmt.Errorf("%s: api status %d", op, decoded.Result.Status)
	}

	listings := make([]Listing, 0, len(decoded.Result.Items))
	for _, item := range decoded.Result.Items {
		if item.ContentID == "" || item.URL == "" {
			continue
		}
		image := item.ImageURL.Large
		if image == "" {
			image = item.ImageURL.List
		}
		released, _ := time.ParseInLocation("2006-01-02 15:04:05", item.Date, time.Local)
		listings = append(listings, Listing{
			Identifier: item.ContentID,
			Title:      item.Title,
			URL:        item.URL,
			ImageURL:   image,
			ReleasedAt: released,
		})
	}
	return listings, nil
}
