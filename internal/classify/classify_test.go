package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseResponse(t *testing.T) {
	input := "CATEGORY: Gospel\nTAGS: Grace, mercy, hope, extra"
	r := parseResponse(input, []string{"doctrine", "gospel"})
	if r.Category != "gospel" {
		t.Errorf("expected category 'gospel', got %q", r.Category)
	}
	if len(r.Tags) != 3 || r.Tags[0] != "grace" {
		t.Errorf("unexpected tags %v", r.Tags)
	}
}

func TestParseResponseUnknownCategory(t *testing.T) {
	r := parseResponse("CATEGORY: astronomy", []string{"doctrine", "gospel"})
	if r.Category != "" {
		t.Errorf("expected empty category, got %q", r.Category)
	}
	if r.Raw != "CATEGORY: astronomy" {
		t.Errorf("expected raw text kept, got %q", r.Raw)
	}
}

func TestParseResponseMalformed(t *testing.T) {
	r := parseResponse("I think this is about grammar.", []string{"grammar"})
	if r.Category != "" || len(r.Tags) != 0 {
		t.Errorf("expected empty result, got %+v", r)
	}
}

func TestBuildPromptTruncatesBody(t *testing.T) {
	prompt := buildPrompt(Request{Title: "Long", Body: strings.Repeat("é", maxBodyRunes+50), Categories: []string{"a", "b"}})
	if strings.Count(prompt, "é") != maxBodyRunes {
		t.Errorf("expected body truncated to %d runes", maxBodyRunes)
	}
	if !strings.Contains(prompt, "categories: a, b.") {
		t.Errorf("expected categories in prompt, got %q", prompt[:120])
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{Provider: "claude"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := New(Config{Provider: "bard", APIKey: "k"}); err == nil {
		t.Fatal("expected unknown provider error")
	}
}

func TestClaudeProviderClassify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" || r.Header.Get("anthropic-version") == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req claudeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "test-model" || len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "Title: Past tense") {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"text":"CATEGORY: grammar\nTAGS: verbs"}]}`))
	}))
	defer server.Close()

	c, err := New(Config{Provider: "claude", APIKey: "key", Model: "test-model", BaseURL: server.URL, RatePerMinute: 600})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	r, err := c.Classify(context.Background(), Request{Title: "Past tense", Body: "Regular verbs", Categories: []string{"grammar", "reading"}})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if r.Category != "grammar" || len(r.Tags) != 1 || r.Tags[0] != "verbs" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestOpenAIProviderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, err := New(Config{Provider: "openai", APIKey: "key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := c.Classify(context.Background(), Request{Title: "x"}); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}
