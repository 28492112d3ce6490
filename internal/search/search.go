package search

import (
	"regexp"

	"curator/api/internal/schedule"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Domain  string `json:"domain"`
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Date    string `json:"date,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Domain string // empty = all domains
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Record is the data we index for a backlog item.
type Record struct {
	Key    string `json:"key"`
	ID     string `json:"id"`
	Domain string `json:"domain"`
	Title  string `json:"title"`
	Week   string `json:"week"`
	Day    string `json:"day"`
	Body   string `json:"body"`
	Date   string `json:"date"`
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Records converts a domain backlog into index records. bodyField names the
// upstream field holding the item's text.
func Records(domain, bodyField string, items []schedule.Item) []Record {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		r := Record{
			Key:    unsafeKeyChars.ReplaceAllString(domain+"-"+item.ID, "_"),
			ID:     item.ID,
			Domain: domain,
			Title:  item.Title,
			Week:   item.WeekLabel,
			Day:    item.DayLabel,
		}
		if body, ok := item.Fields[bodyField].(string); ok {
			r.Body = body
		}
		if item.AssignedDate != nil {
			r.Date = item.AssignedDate.Format(schedule.DateLayout)
		}
		records = append(records, r)
	}
	return records
}
