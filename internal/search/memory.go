package search

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Memory is an in-process substring index over the latest records of each
// domain. It backs search when Meilisearch is not configured or unhealthy.
type Memory struct {
	mu      sync.RWMutex
	domains map[string][]Record
}

func NewMemory() *Memory {
	return &Memory{domains: make(map[string][]Record)}
}

// Replace swaps the records held for domain.
func (m *Memory) Replace(domain string, records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[domain] = records
}

func (m *Memory) Healthy() bool { return true }

// Search matches every whitespace-separated term case-insensitively against
// title, labels and body. Title matches rank first.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))

	m.mu.RLock()
	names := make([]string, 0, len(m.domains))
	for name := range m.domains {
		if q.Domain == "" || q.Domain == name {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	type scored struct {
		result Result
		title  bool
	}
	var hits []scored
	for _, name := range names {
		for _, r := range m.domains[name] {
			title := strings.ToLower(r.Title)
			haystack := strings.Join([]string{title, strings.ToLower(r.Week), strings.ToLower(r.Day), strings.ToLower(r.Body)}, "\n")
			if !containsAll(haystack, terms) {
				continue
			}
			hits = append(hits, scored{
				result: Result{Domain: r.Domain, ID: r.ID, Title: r.Title, Snippet: snippet(r.Body, terms), Date: r.Date},
				title:  len(terms) > 0 && containsAll(title, terms),
			})
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].title && !hits[j].title })

	total := len(hits)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	start := min(max(q.Offset, 0), total)
	end := min(start+limit, total)

	results := make([]Result, 0, end-start)
	for _, h := range hits[start:end] {
		results = append(results, h.result)
	}
	return results, total, nil
}

func containsAll(haystack string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func snippet(body string, terms []string) string {
	const radius = 60
	if body == "" {
		return ""
	}
	runes := []rune(body)
	at := 0
	if len(terms) > 0 {
		lower := strings.ToLower(body)
		if i := strings.Index(lower, terms[0]); i >= 0 && len(lower) == len(body) {
			at = utf8.RuneCountInString(body[:i])
		}
	}
	start := max(at-radius, 0)
	end := min(at+radius, len(runes))
	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}
