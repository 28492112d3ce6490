// Package gateway is the HTTP client for the upstream document-collection
// API. It maps raw records onto schedule items and series using the field
// names configured per domain, and writes date assignments back.
package gateway

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

	"golang.org/x/time/rate"
)

const pageSize = 100

var (
	// ErrUpstreamUnavailable wraps transport failures and 5xx responses.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamRejected wraps 4xx responses and bodies that fail to decode.
	ErrUpstreamRejected = errors.New("upstream rejected request")
)

// StatusError is a non-2xx answer from the upstream API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code >= http.StatusInternalServerError {
		return ErrUpstreamUnavailable
	}
	return ErrUpstreamRejected
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RatePerSecond throttles outbound requests; zero or less disables it.
	RatePerSecond    float64
	WriteConcurrency int
	Location         *time.Location
	HTTPClient       *http.Client
}

// Client talks to the upstream collection API.
type Client struct {
	baseURL          string
	token            string
	http             *http.Client
	limiter          *rate.Limiter
	writeConcurrency int
	loc              *time.Location
}

// New creates a Client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit, burst := rate.Inf, 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = max(1, int(opts.RatePerSecond))
	}

	concurrency := opts.WriteConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	return &Client{
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		token:            opts.Token,
		http:             httpClient,
		limiter:          rate.NewLimiter(limit, burst),
		writeConcurrency: concurrency,
		loc:              loc,
	}
}

// Record is a raw upstream item.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type listResponse struct {
	Items      []Record `json:"items"`
	NextCursor string   `json:"nextCursor"`
}

// Ping checks the upstream health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ListRecords pages through every record of a collection in upstream order.
func (c *Client) ListRecords(ctx context.Context, collection string) ([]Record, error) {
	var records []Record
	cursor := ""
	for {
		query := url.Values{}
		query.Set("limit", fmt.Sprint(pageSize))
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		path := "/collections/" + url.PathEscape(collection) + "/items?" + query.Encode()

		var page listResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		records = append(records, page.Items...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			return records, nil
		}
		cursor = page.NextCursor
	}
}

// UpdateFields patches the given fields of one record.
func (c *Client) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	path := "/collections/" + url.PathEscape(collection) + "/items/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, map[string]any{"fields": fields}, nil); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstreamRejected, err)
	}
	return nil
}
