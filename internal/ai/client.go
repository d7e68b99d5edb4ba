package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const defaultHTTPTimeout = 60 * time.Second

// Suggester is the AI surface the workflow consumes. Implementations return
// the model's raw text; parsing belongs to the reconcile package.
type Suggester interface {
	// SuggestEntities asks the text model to judge or propose the original
	// work and characters for a product description.
	SuggestEntities(ctx context.Context, title, description, expectedWork, expectedChar string) (string, error)
	// AnalyzeImage asks the vision model to extract entity hints from the
	// product's main image.
	AnalyzeImage(ctx context.Context, imageURL, expectedWork, expectedChar string) (string, error)
}

// Client wraps a chat-completions API for both analysis facets.
type Client struct {
	cfg        config.LLM
	httpClient *http.Client
}

var _ Suggester = (*Client)(nil)

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

// NewClient constructs an AI client from the shared LLM settings.
func NewClient(cfg config.LLM, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm api key required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("llm base url required")
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

const entitySystemPrompt = `You identify the original work (原作名) and character names (キャラクター名リスト) a derivative product is based on. Respond with JSON only. When the operator supplies expected values, judge them and answer with {"judgement_result":"一致"} or {"judgement_result":"相違","correct_original_work":...,"correct_character_name":...}. When a value cannot be determined, use "不明".`

const imageSystemPrompt = `You extract the original work and character names visible in a product image. Respond with JSON only: {"原作名":...,"キャラクター名リスト":[...]}. Use "不明" when unsure.`

// SuggestEntities runs the text facet.
func (c *Client) SuggestEntities(ctx context.Context, title, description, expectedWork, expectedChar string) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "商品タイトル: %s\n", strings.TrimSpace(title))
	if description = strings.TrimSpace(description); description != "" {
		fmt.Fprintf(&prompt, "商品説明: %s\n", description)
	}
	if expectedWork = strings.TrimSpace(expectedWork); expectedWork != "" {
		fmt.Fprintf(&prompt, "期待する原作名: %s\n", expectedWork)
	}
	if expectedChar = strings.TrimSpace(expectedChar); expectedChar != "" {
		fmt.Fprintf(&prompt, "期待するキャラクター名: %s\n", expectedChar)
	}
	messages := []chatMessage{
		{Role: "system", Content: entitySystemPrompt},
		{Role: "user", Content: prompt.String()},
	}
	return c.complete(ctx, c.cfg.Model, messages, "suggest entities")
}

// AnalyzeImage runs the vision facet against the product's main image.
func (c *Client) AnalyzeImage(ctx context.Context, imageURL, expectedWork, expectedChar string) (string, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return "", errors.New("image url required")
	}
	var prompt strings.Builder
	prompt.WriteString("この画像の元になった原作とキャラクターを特定してください。\n")
	if expectedWork = strings.TrimSpace(expectedWork); expectedWork != "" {
		fmt.Fprintf(&prompt, "期待する原作名: %s\n", expectedWork)
	}
	if expectedChar = strings.TrimSpace(expectedChar); expectedChar != "" {
		fmt.Fprintf(&prompt, "期待するキャラクター名: %s\n", expectedChar)
	}
	messages := []chatMessage{
		{Role: "system", Content: imageSystemPrompt},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: prompt.String()},
			{Type: "image_url", ImageURL: &imageRef{URL: imageURL}},
		}},
	}
	model := c.cfg.ImageModel
	if model == "" {
		model = c.cfg.Model
	}
	return c.complete(ctx, model, messages, "analyze image")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, model string, messages []chatMessage, op string) (string, error) {
	payload := chatCompletionRequest{
		Model:          model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return "", fmt.Errorf("%s: execute request (latency=%v): %w", op, latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%s: api returned %d (latency=%v): %s", op, resp.StatusCode, latency, strings.TrimSpace(string(snippet)))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", op, err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("%s: api error: %s", op, completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", op)
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%s: empty content (finish_reason=%q, refusal=%q)",
			op, completion.Choices[0].FinishReason, completion.Choices[0].Message.Refusal)
	}
	return content, nil
}
