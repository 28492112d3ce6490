// Package schedule assigns calendar dates to an ordered backlog of content
// items under a weekday constraint, and shifts downstream dates when one item
// is moved by hand.
package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Item is one unit of content to be dated.
type Item struct {
	ID           string         `json:"id"`
	Title        string         `json:"title,omitempty"`
	OrderHint    *int           `json:"order,omitempty"`
	WeekLabel    string         `json:"week,omitempty"`
	DayLabel     string         `json:"day,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	AssignedDate *time.Time     `json:"date,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// Completed reports whether the item carries a completion marker.
func (i Item) Completed() bool {
	return i.CompletedAt != nil && !i.CompletedAt.IsZero()
}

// Series drives which calendar dates are eligible for assignment.
type Series struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartDate time.Time `json:"startDate"`
	Weekdays  Weekdays  `json:"weekdays"`
}

// Active reports whether the series has both a title and a start date.
func (s Series) Active() bool {
	return strings.TrimSpace(s.Title) != "" && !s.StartDate.IsZero()
}

// ActiveSeries returns the first active series in listing order.
func ActiveSeries(series []Series) (Series, bool) {
	for _, s := range series {
		if s.Active() {
			return s, true
		}
	}
	return Series{}, false
}

// Assignment pairs an item with the date it should be scheduled on.
type Assignment struct {
	ItemID string
	Title  string
	Date   time.Time
}

func (a Assignment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID    string `json:"id"`
		Title string `json:"title,omitempty"`
		Date  string `json:"date"`
	}{a.ItemID, a.Title, a.Date.Format(DateLayout)})
}

// Weekdays is a set of weekdays stored as a bitmask indexed by time.Weekday.
type Weekdays uint8

// Weekday set helpers.
const (
	Weekend  = Weekdays(1<<time.Saturday | 1<<time.Sunday)
	Workdays = Weekdays(1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday | 1<<time.Thursday | 1<<time.Friday)
)

// NewWeekdays builds a set from the given days.
func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w = w.With(d)
	}
	return w
}

func (w Weekdays) With(d time.Weekday) Weekdays {
	if d < time.Sunday || d > time.Saturday {
		return w
	}
	return w | 1<<d
}

func (w Weekdays) Has(d time.Weekday) bool {
	return w&(1<<d) != 0
}

func (w Weekdays) Empty() bool {
	return w == 0
}

// Days lists the members in Sunday-first order.
func (w Weekdays) Days() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

func (w Weekdays) String() string {
	names := make([]string, 0, 7)
	for _, d := range w.Days() {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return strings.Join(names, ",")
}

func (w Weekdays) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 7)
	for _, d := range w.Days() {
		names = append(names, strings.ToLower(d.String()))
	}
	return json.Marshal(names)
}

func (w *Weekdays) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("weekdays: %w", err)
	}
	parsed, err := ParseWeekdays(names)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// ParseWeekdays accepts English day names ("Sunday", "sun") or numbers 0-6
// with Sunday as 0.
func ParseWeekdays(values []string) (Weekdays, error) {
	var w Weekdays
	for _, raw := range values {
		d, err := ParseWeekday(raw)
		if err != nil {
			return 0, err
		}
		w = w.With(d)
	}
	return w, nil
}

// ParseWeekday parses a single day name or number.
func ParseWeekday(raw string) (time.Weekday, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("weekday %q out of range", raw)
		}
		return time.Weekday(n), nil
	}
	if len(value) >= 3 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			name := strings.ToLower(d.String())
			if strings.HasPrefix(name, value) {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", raw)
}

// Day truncates t to midnight of its calendar date in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate parses a YYYY-MM-DD date in loc. Longer RFC 3339 timestamps are
// accepted and truncated to their calendar date.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(DateLayout, value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return Day(t.In(loc)), nil
}
