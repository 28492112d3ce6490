package search

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"curator/api/internal/schedule"
)

func testRecords() []Record {
	day := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	return Records("sermons", "content", []schedule.Item{
		{ID: "s1", Title: "Grace abounding", WeekLabel: "Week 1", Fields: map[string]any{"content": "On grace and mercy."}, AssignedDate: &day},
		{ID: "s2", Title: "Hope", Fields: map[string]any{"content": "Hope in hard times, and grace for the weary."}},
		{ID: "s/3", Title: "Joy"},
	})
}

func TestRecords(t *testing.T) {
	records := testRecords()
	if records[0].Key != "sermons-s1" || records[0].Date != "2024-01-07" || records[0].Body != "On grace and mercy." {
		t.Fatalf("unexpected record %+v", records[0])
	}
	if records[2].Key != "sermons-s_3" {
		t.Fatalf("expected sanitized key, got %q", records[2].Key)
	}
}

func TestMemorySearchRanksTitleMatchesFirst(t *testing.T) {
	m := NewMemory()
	m.Replace("sermons", testRecords())
	m.Replace("english", Records("english", "content", []schedule.Item{{ID: "e1", Title: "Grammar: grace notes"}}))

	results, total, err := m.Search(Query{Text: "GRACE", Domain: "sermons"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 hits, got %d", total)
	}
	got := []string{results[0].ID, results[1].ID}
	if diff := cmp.Diff([]string{"s1", "s2"}, got); diff != "" {
		t.Fatalf("unexpected ranking (-want +got):\n%s", diff)
	}

	all, total, _ := m.Search(Query{Text: "grace"})
	if total != 3 || len(all) != 3 {
		t.Fatalf("expected 3 hits across domains, got %d", total)
	}
}

func TestMemorySearchPaginates(t *testing.T) {
	m := NewMemory()
	m.Replace("sermons", testRecords())
	results, total, _ := m.Search(Query{Text: "", Limit: 2, Offset: 2})
	if total != 3 || len(results) != 1 || results[0].ID != "s/3" {
		t.Fatalf("unexpected page %v (total %d)", results, total)
	}
	results, _, _ = m.Search(Query{Offset: 10})
	if len(results) != 0 {
		t.Fatalf("expected empty page, got %v", results)
	}
}

func TestSnippetCentersOnTerm(t *testing.T) {
	body := "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Grace appears here near the end of a long body of text that keeps going."
	got := snippet(body, []string{"grace"})
	if got[:3] != "…" {
		t.Fatalf("expected leading ellipsis, got %q", got)
	}
	if len(got) == 0 || !containsAll(got, []string{"Grace"}) {
		t.Fatalf("expected snippet to include term, got %q", got)
	}
}

func TestServiceFallsBackToMemory(t *testing.T) {
	svc := NewService(nil, nil, zerolog.Nop())
	svc.IndexDomain("sermons", testRecords())

	resp := svc.Search(Query{Text: "hope"})
	if resp.Backend != "memory" || resp.Total != 1 || resp.Results[0].ID != "s2" {
		t.Fatalf("unexpected response %+v", resp)
	}
	empty := svc.Search(Query{Text: "nothing matches"})
	if empty.Results == nil || len(empty.Results) != 0 {
		t.Fatalf("expected non-nil empty results, got %#v", empty.Results)
	}
}
