package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"curator/api/internal/config"
	"curator/api/internal/schedule"
)

type fakeUpstream struct {
	mu       sync.Mutex
	pages    map[string][]listResponse
	patched  map[string]map[string]any
	failIDs  map[string]bool
	auth     []string
	requests int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		pages:   make(map[string][]listResponse),
		patched: make(map[string]map[string]any),
		failIDs: make(map[string]bool),
	}
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "collections" && parts[2] == "items":
		pages, ok := f.pages[parts[1]]
		if !ok {
			http.Error(w, "no such collection", http.StatusNotFound)
			return
		}
		index := 0
		if cursor := r.URL.Query().Get("cursor"); cursor != "" {
			index = int(cursor[0] - '0')
		}
		_ = json.NewEncoder(w).Encode(pages[index])
	case r.Method == http.MethodPatch && len(parts) == 4 && parts[0] == "collections":
		if f.failIDs[parts[3]] {
			http.Error(w, "locked", http.StatusConflict)
			return
		}
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.patched[parts[1]+"/"+parts[3]] = body.Fields
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, upstream http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)
	return New(Options{BaseURL: server.URL + "/", Token: "secret", Location: time.UTC, WriteConcurrency: 2})
}

func sermons() config.Domain {
	return config.DefaultDomains()[0]
}

func TestFetchItemsPagesAndMapsFields(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.pages["sermons"] = []listResponse{
		{
			Items: []Record{
				{ID: "s1", Fields: map[string]any{"title": "Grace", "order": float64(2), "scheduled_date": "2024-01-07"}},
				{ID: "s2", Fields: map[string]any{"title": " Hope ", "week": "Week 1", "day": "Day 2", "completed_at": "2024-01-03T10:15:00Z"}},
			},
			NextCursor: "1",
		},
		{Items: []Record{{ID: "s3", Fields: map[string]any{"order": "7"}}}},
	}
	client := newTestClient(t, upstream)

	items, err := client.FetchItems(context.Background(), sermons())
	if err != nil {
		t.Fatalf("FetchItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].OrderHint == nil || *items[0].OrderHint != 2 {
		t.Errorf("expected order hint 2, got %v", items[0].OrderHint)
	}
	if items[0].AssignedDate == nil || !items[0].AssignedDate.Equal(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected assigned date %v", items[0].AssignedDate)
	}
	if items[1].Title != "Hope" || items[1].WeekLabel != "Week 1" || items[1].DayLabel != "Day 2" {
		t.Errorf("unexpected labels %+v", items[1])
	}
	if items[1].CompletedAt == nil || items[1].CompletedAt.Hour() != 10 {
		t.Errorf("expected completion timestamp to keep time of day, got %v", items[1].CompletedAt)
	}
	if items[2].OrderHint == nil || *items[2].OrderHint != 7 {
		t.Errorf("expected string order hint parsed, got %v", items[2].OrderHint)
	}
	if upstream.auth[0] != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", upstream.auth[0])
	}
}

func TestFetchSeriesAppliesDefaultWeekdays(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.pages["sermon-series"] = []listResponse{{Items: []Record{
		{ID: "draft", Fields: map[string]any{"title": "Draft"}},
		{ID: "advent", Fields: map[string]any{"title": "Advent", "start_date": "2024-12-01"}},
		{ID: "midweek", Fields: map[string]any{"title": "Midweek", "start_date": "2024-01-01", "weekdays": []any{"wednesday", float64(5)}}},
		{ID: "csv", Fields: map[string]any{"title": "Csv", "start_date": "2024-01-01", "weekdays": "mon, thu"}},
	}}}
	client := newTestClient(t, upstream)

	series, err := client.FetchSeries(context.Background(), sermons())
	if err != nil {
		t.Fatalf("FetchSeries failed: %v", err)
	}
	active, ok := schedule.ActiveSeries(series)
	if !ok || active.ID != "advent" {
		t.Fatalf("expected advent active, got %+v", active)
	}
	if active.Weekdays != schedule.NewWeekdays(time.Sunday) {
		t.Errorf("expected default sunday, got %s", active.Weekdays)
	}
	if series[2].Weekdays != schedule.NewWeekdays(time.Wednesday, time.Friday) {
		t.Errorf("unexpected midweek weekdays %s", series[2].Weekdays)
	}
	if series[3].Weekdays != schedule.NewWeekdays(time.Monday, time.Thursday) {
		t.Errorf("unexpected csv weekdays %s", series[3].Weekdays)
	}
}

func TestWriteAssignmentsReportsPartialFailure(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.failIDs["b"] = true
	client := newTestClient(t, upstream)

	day := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	report := client.WriteAssignments(context.Background(), sermons(), []schedule.Assignment{
		{ItemID: "a", Date: day},
		{ItemID: "b", Date: day.AddDate(0, 0, 7)},
		{ItemID: "c", Date: day.AddDate(0, 0, 14)},
	})

	if report.Succeeded != 2 || report.Failed != 1 || !report.Partial() {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].ItemID != "b" {
		t.Fatalf("unexpected failures %+v", report.Failures)
	}
	want := map[string]map[string]any{
		"sermons/a": {"scheduled_date": "2024-01-07"},
		"sermons/c": {"scheduled_date": "2024-01-21"},
	}
	if diff := cmp.Diff(want, upstream.patched); diff != "" {
		t.Fatalf("unexpected writes (-want +got):\n%s", diff)
	}
}

func TestWriteAssignmentsEmpty(t *testing.T) {
	client := newTestClient(t, newFakeUpstream())
	report := client.WriteAssignments(context.Background(), sermons(), nil)
	if report.Succeeded != 0 || report.Failed != 0 || report.Partial() {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestUpstreamErrorsWrapSentinel(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	_, err := client.FetchItems(context.Background(), sermons())
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestClientErrorsAreRejections(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such collection", http.StatusNotFound)
	}))
	_, err := client.FetchItems(context.Background(), sermons())
	if errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected 404 not to read as unavailable, got %v", err)
	}
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Fatalf("expected ErrUpstreamRejected, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
}

func TestMalformedBodyIsRejection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	_, err := client.FetchItems(context.Background(), sermons())
	if !errors.Is(err, ErrUpstreamRejected) || errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamRejected only, got %v", err)
	}
}

func TestUnreachableUpstream(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	client := New(Options{BaseURL: server.URL, Timeout: time.Second})
	if err := client.Ping(context.Background()); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestPing(t *testing.T) {
	client := newTestClient(t, newFakeUpstream())
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestRequestsHonourCancellation(t *testing.T) {
	client := newTestClient(t, newFakeUpstream())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.Ping(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
