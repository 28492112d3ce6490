// Package classify asks a language model to file a content item under one
// of its domain's categories.
package classify

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

	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by New when no provider or API key is set.
var ErrNotConfigured = errors.New("classifier not configured")

// Request is one item to classify.
type Request struct {
	Title      string
	Body       string
	Categories []string
}

// Result holds the model's answer. Category is empty when the model picked
// something outside the allowed list.
type Result struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Raw      string   `json:"raw,omitempty"`
}

// Classifier labels content items.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Result, error)
}

// Config selects and tunes the provider.
type Config struct {
	Provider string // "claude" or "openai"
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
	// RatePerMinute caps outbound calls; zero uses 30.
	RatePerMinute int
}

// New creates a Classifier from cfg.
func New(cfg Config) (Classifier, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	base := provider{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}

	switch cfg.Provider {
	case "", "claude":
		if base.model == "" {
			base.model = "claude-haiku-4-5-20251001"
		}
		if base.baseURL == "" {
			base.baseURL = "https://api.anthropic.com/v1/messages"
		}
		return &claudeProvider{provider: base}, nil
	case "openai":
		if base.model == "" {
			base.model = "gpt-4o-mini"
		}
		if base.baseURL == "" {
			base.baseURL = "https://api.openai.com/v1/chat/completions"
		}
		return &openaiProvider{provider: base}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (valid: claude, openai)", cfg.Provider)
	}
}

const classifyPrompt = `Classify this content item into exactly one of these categories: %s.
Also give up to 3 short topic tags (single lowercase words).

Format your response EXACTLY like this:
CATEGORY: <category>
TAGS: tag1, tag2, tag3

Title: %s
Content: %s`

const maxBodyRunes = 4000

func buildPrompt(req Request) string {
	body := []rune(strings.TrimSpace(req.Body))
	if len(body) > maxBodyRunes {
		body = body[:maxBodyRunes]
	}
	return fmt.Sprintf(classifyPrompt, strings.Join(req.Categories, ", "), req.Title, string(body))
}

func parseResponse(text string, categories []string) Result {
	r := Result{Raw: strings.TrimSpace(text)}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "CATEGORY:"):
			r.Category = matchCategory(strings.TrimSpace(line[len("CATEGORY:"):]), categories)
		case strings.HasPrefix(upper, "TAGS:"):
			for _, t := range strings.Split(line[len("TAGS:"):], ",") {
				t = strings.TrimSpace(strings.ToLower(t))
				if t != "" {
					r.Tags = append(r.Tags, t)
				}
			}
			if len(r.Tags) > 3 {
				r.Tags = r.Tags[:3]
			}
		}
	}
	return r
}

func matchCategory(answer string, categories []string) string {
	answer = strings.Trim(strings.TrimSpace(answer), `"'.`)
	if len(categories) == 0 {
		return strings.ToLower(answer)
	}
	for _, c := range categories {
		if strings.EqualFold(c, answer) {
			return c
		}
	}
	return ""
}

type provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func (p provider) post(ctx context.Context, payload any, headers map[string]string, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("LLM API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("LLM API %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// --- Claude provider ---

type claudeProvider struct {
	provider
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *claudeProvider) Classify(ctx context.Context, req Request) (Result, error) {
	var cr claudeResponse
	err := c.post(ctx, claudeRequest{
		Model:     c.model,
		MaxTokens: 128,
		Messages:  []claudeMessage{{Role: "user", Content: buildPrompt(req)}},
	}, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}, &cr)
	if err != nil {
		return Result{}, err
	}
	if len(cr.Content) == 0 {
		return Result{}, fmt.Errorf("empty claude response")
	}
	return parseResponse(cr.Content[0].Text, req.Categories), nil
}

// --- OpenAI provider ---

type openaiProvider struct {
	provider
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *openaiProvider) Classify(ctx context.Context, req Request) (Result, error) {
	var or openaiResponse
	err := o.post(ctx, openaiRequest{
		Model:    o.model,
		Messages: []openaiMessage{{Role: "user", Content: buildPrompt(req)}},
	}, map[string]string{
		"Authorization": "Bearer " + o.apiKey,
	}, &or)
	if err != nil {
		return Result{}, err
	}
	if len(or.Choices) == 0 {
		return Result{}, fmt.Errorf("empty openai response")
	}
	return parseResponse(or.Choices[0].Message.Content, req.Categories), nil
}
