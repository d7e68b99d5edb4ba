package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RenderMode selects how the values API materializes cell contents.
type RenderMode string

const (
	// RenderFormatted returns cell values as the operator sees them.
	RenderFormatted RenderMode = "FORMATTED_VALUE"
	// RenderFormula returns the underlying formula text, which is the only
	// way to recover the URL inside a HYPERLINK cell.
	RenderFormula RenderMode = "FORMULA"
)

// Client talks to a hosted spreadsheet values API. Every request passes
// through the shared rate limiter before touching the network.
type Client struct {
	baseURL       string
	spreadsheetID string
	apiKey        string
	httpClient    *http.Client
	gate          *Gate
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithGate overrides the default rate limiter. Passing nil disables limiting,
// which only tests should do.
func WithGate(gate *Gate) Option {
	return func(c *Client) {
		c.gate = gate
	}
}

// New creates a values API client for one spreadsheet.
func New(baseURL, spreadsheetID, apiKey string, opts ...Option) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("sheet base url required")
	}
	client := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		spreadsheetID: spreadsheetID,
		apiKey:        strings.TrimSpace(apiKey),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		gate:          NewGate(0, 0, 0),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type valueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values"`
}

type rawValueRange struct {
	Values [][]any `json:"values"`
}

// Values reads a range and returns it as rows of strings. Numeric and boolean
// cells are stringified; missing trailing cells stay absent, so callers must
// tolerate short rows.
func (c *Client) Values(ctx context.Context, rangeSpec string, mode RenderMode) ([][]string, error) {
	if strings.TrimSpace(rangeSpec) == "" {
		return nil, errors.New("range must not be empty")
	}
	params := url.Values{}
	params.Set("valueRenderOption", string(mode))
	endpoint := c.valuesURL(rangeSpec, "", params)

	var payload rawValueRange
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(payload.Values))
	for _, raw := range payload.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			row = append(row, stringifyCell(cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Update overwrites a range with the supplied rows. The input mode is chosen
// from the payload: rows carrying HYPERLINK formulas need the API to
// interpret them, everything else is written verbatim.
func (c *Client) Update(ctx context.Context, rangeSpec string, rows [][]string) error {
	if strings.TrimSpace(rangeSpec) == "" {
		return errors.New("range must not be empty")
	}
	params := url.Values{}
	params.Set("valueInputOption", inputOptionFor(rows))
	endpoint := c.valuesURL(rangeSpec, "", params)
	body := valueRange{MajorDimension: "ROWS", Values: rows}
	return c.do(ctx, http.MethodPut, endpoint, body, nil)
}

// Append adds rows after the last populated row of the range's table.
func (c *Client) Append(ctx context.Context, rangeSpec string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	params := url.Values{}
	params.Set("valueInputOption", inputOptionFor(rows))
	params.Set("insertDataOption", "INSERT_ROWS")
	endpoint := c.valuesURL(rangeSpec, ":append", params)
	body := valueRange{MajorDimension: "ROWS", Values: rows}
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// DeleteRows removes the given 1-based row numbers from the named sheet.
// Rows are deleted in descending order so earlier deletions cannot shift the
// indices of later ones.
func (c *Client) DeleteRows(ctx context.Context, sheetTitle string, rowNumbers []int) error {
	if len(rowNumbers) == 0 {
		return nil
	}
	sheetID, err := c.SheetID(ctx, sheetTitle)
	if err != nil {
		return err
	}

	ordered := append([]int(nil), rowNumbers...)
	sort.Sort(sort.Reverse(sort.IntSlice(ordered)))

	type dimensionRange struct {
		SheetID    int64  `json:"sheetId"`
		Dimension  string `json:"dimension"`
		StartIndex int    `json:"startIndex"`
		EndIndex   int    `json:"endIndex"`
	}
	type deleteDimension struct {
		Range dimensionRange `json:"range"`
	}
	type request struct {
		DeleteDimension *deleteDimension `json:"deleteDimension,omitempty"`
	}

	requests := make([]request, 0, len(ordered))
	for _, row := range ordered {
		if row < 1 {
			return fmt.Errorf("row number %d out of range", row)
		}
		requests = append(requests, request{DeleteDimension: &deleteDimension{
			Range: dimensionRange{
				SheetID:    sheetID,
				Dimension:  "ROWS",
				StartIndex: row - 1,
				EndIndex:   row,
			},
		}})
	}

	endpoint := c.withKey(fmt.Sprintf("%s/spreadsheets/%s:batchUpdate", c.baseURL, url.PathEscape(c.spreadsheetID)), url.Values{})
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"requests": requests}, nil)
}

// SheetID resolves a sheet title to its numeric identifier.
func (c *Client) SheetID(ctx context.Context, title string) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, errors.New("sheet title required")
	}
	params := url.Values{}
	params.Set("fields", "sheets.properties")
	endpoint := c.withKey(fmt.Sprintf("%s/spreadsheets/%s", c.baseURL, url.PathEscape(c.spreadsheetID)), params)

	var payload struct {
		Sheets []struct {
			Properties struct {
				SheetID int64  `json:"sheetId"`
				Title   string `json:"title"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return 0, err
	}
	for _, s := range payload.Sheets {
		if s.Properties.Title == title {
			return s.Properties.SheetID, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", title)
}

func (c *Client) valuesURL(rangeSpec, suffix string, params url.Values) string {
	base := fmt.Sprintf("%s/spreadsheets/%s/values/%s%s",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(rangeSpec), suffix)
	return c.withKey(base, params)
}

func (c *Client) withKey(endpoint string, params url.Values) string {
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	if encoded := params.Encode(); encoded != "" {
		return endpoint + "?" + encoded
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	if c.gate != nil {
		if err := c.gate.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sheet api returned %d (latency=%v)", resp.StatusCode, latency)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode sheet response: %w", err)
	}
	return nil
}

func inputOptionFor(rows [][]string) string {
	for _, row := range rows {
		for _, cell := range row {
			if IsFormula(cell) {
				return "USER_ENTERED"
			}
		}
	}
	return "RAW"
}

func stringifyCell(cell any) string {
	switch v := cell.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
