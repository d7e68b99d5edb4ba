package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribe/internal/config"
)

func testConfig(baseURL string) config.LLM {
	return config.LLM{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "text-model",
		ImageModel: "vision-model",
		Referer:    "https://example.test",
		Title:      "scribe",
	}
}

func completionBody(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestSuggestEntitiesSendsPromptAndHeaders(t *testing.T) {
	var captured chatCompletionRequest
	var authHeader, referer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		referer = r.Header.Get("HTTP-Referer")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(completionBody(`{"judgement_result":"一致"}`)))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	content, err := client.SuggestEntities(context.Background(), "作品タイトル", "説明文", "原作A", "キャラA")
	if err != nil {
		t.Fatalf("SuggestEntities returned error: %v", err)
	}
	if content != `{"judgement_result":"一致"}` {
		t.Fatalf("unexpected content %q", content)
	}
	if authHeader != "Bearer test-key" {
		t.Errorf("authorization header = %q", authHeader)
	}
	if referer != "https://example.test" {
		t.Errorf("referer header = %q", referer)
	}
	if captured.Model != "text-model" {
		t.Errorf("model = %q, want text-model", captured.Model)
	}
	if captured.ResponseFormat["type"] != "json_object" {
		t.Errorf("response_format = %v", captured.ResponseFormat)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(captured.Messages))
	}
	user, ok := captured.Messages[1].Content.(string)
	if !ok {
		t.Fatalf("user content is %T, want string", captured.Messages[1].Content)
	}
	for _, want := range []string{"作品タイトル", "説明文", "原作A", "キャラA"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestAnalyzeImageUsesVisionModelAndImagePart(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(completionBody(`{"原作名":"原作A"}`)))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := client.AnalyzeImage(context.Background(), "https://img.example/p.jpg", "原作A", ""); err != nil {
		t.Fatalf("AnalyzeImage returned error: %v", err)
	}
	if captured["model"] != "vision-model" {
		t.Errorf("model = %v, want vision-model", captured["model"])
	}
	messages := captured["messages"].([]any)
	user := messages[1].(map[string]any)
	parts, ok := user["content"].([]any)
	if !ok {
		t.Fatalf("user content is %T, want parts array", user["content"])
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(parts))
	}
	image := parts[1].(map[string]any)
	if image["type"] != "image_url" {
		t.Errorf("second part type = %v", image["type"])
	}
	ref := image["image_url"].(map[string]any)
	if ref["url"] != "https://img.example/p.jpg" {
		t.Errorf("image url = %v", ref["url"])
	}
}

func TestAnalyzeImageRequiresURL(t *testing.T) {
	client, err := NewClient(testConfig("https://unused.example"))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := client.AnalyzeImage(context.Background(), "  ", "", ""); err == nil {
		t.Fatal("expected error for blank image url")
	}
}

func TestCompleteReportsAPIStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = client.SuggestEntities(context.Background(), "t", "", "", "")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should include status: %v", err)
	}
}

func TestCompleteRejectsEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("   ")))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := client.SuggestEntities(context.Background(), "t", "", "", ""); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(config.LLM{BaseURL: "x"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := NewClient(config.LLM{APIKey: "x"}); err == nil {
		t.Fatal("expected error for missing base url")
	}
}
