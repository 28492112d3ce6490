package gateway

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"curator/api/internal/config"
	"curator/api/internal/schedule"
)

// WriteFailure records one assignment the upstream rejected.
type WriteFailure struct {
	ItemID string `json:"id"`
	Error  string `json:"error"`
}

// WriteReport aggregates a batch of per-item writes. Writes are independent:
// a failure leaves earlier and later successes in place.
type WriteReport struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Failures  []WriteFailure `json:"failures,omitempty"`
}

// Partial reports whether some but not all writes succeeded.
func (r WriteReport) Partial() bool {
	return r.Succeeded > 0 && r.Failed > 0
}

// FetchItems returns the domain's backlog in upstream order.
func (c *Client) FetchItems(ctx context.Context, d config.Domain) ([]schedule.Item, error) {
	records, err := c.ListRecords(ctx, d.Collection)
	if err != nil {
		return nil, err
	}
	items := make([]schedule.Item, 0, len(records))
	for _, r := range records {
		items = append(items, c.toItem(d, r))
	}
	return items, nil
}

// FetchSeries returns the domain's series in upstream order. Series without
// their own weekdays inherit the domain default.
func (c *Client) FetchSeries(ctx context.Context, d config.Domain) ([]schedule.Series, error) {
	records, err := c.ListRecords(ctx, d.SeriesCollection)
	if err != nil {
		return nil, err
	}
	series := make([]schedule.Series, 0, len(records))
	for _, r := range records {
		s := schedule.Series{
			ID:       r.ID,
			Title:    stringField(r.Fields, d.SeriesFields.Title),
			Weekdays: weekdaysField(r.Fields, d.SeriesFields.Weekdays),
		}
		if t, ok := c.dateField(r.Fields, d.SeriesFields.StartDate); ok {
			s.StartDate = t
		}
		if s.Weekdays.Empty() {
			s.Weekdays = d.Weekdays()
		}
		series = append(series, s)
	}
	return series, nil
}

// WriteAssignments stores each assignment's date on its item, with bounded
// concurrency. It never returns early: every assignment is attempted and
// accounted for in the report, in input order.
func (c *Client) WriteAssignments(ctx context.Context, d config.Domain, assignments []schedule.Assignment) WriteReport {
	errs := make([]error, len(assignments))
	var g errgroup.Group
	g.SetLimit(c.writeConcurrency)
	for i, a := range assignments {
		g.Go(func() error {
			errs[i] = c.UpdateFields(ctx, d.Collection, a.ItemID, map[string]any{
				d.Fields.Date: a.Date.Format(schedule.DateLayout),
			})
			return nil
		})
	}
	_ = g.Wait()

	var report WriteReport
	for i, err := range errs {
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, WriteFailure{ItemID: assignments[i].ItemID, Error: err.Error()})
			continue
		}
		report.Succeeded++
	}
	return report
}

func (c *Client) toItem(d config.Domain, r Record) schedule.Item {
	item := schedule.Item{
		ID:        r.ID,
		Title:     stringField(r.Fields, d.Fields.Title),
		WeekLabel: stringField(r.Fields, d.Fields.Week),
		DayLabel:  stringField(r.Fields, d.Fields.Day),
		Fields:    r.Fields,
	}
	if n, ok := intField(r.Fields, d.Fields.Order); ok {
		item.OrderHint = &n
	}
	if t, ok := c.timestampField(r.Fields, d.Fields.Completed); ok {
		item.CompletedAt = &t
	}
	if t, ok := c.dateField(r.Fields, d.Fields.Date); ok {
		item.AssignedDate = &t
	}
	return item
}

func stringField(fields map[string]any, name string) string {
	switch v := fields[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func intField(fields map[string]any, name string) (int, bool) {
	switch v := fields[name].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

func (c *Client) dateField(fields map[string]any, name string) (time.Time, bool) {
	raw, ok := fields[name].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}
	t, err := schedule.ParseDate(raw, c.loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// timestampField keeps the time of day when the value carries one, so two
// completions on the same date still rank correctly.
func (c *Client) timestampField(fields map[string]any, name string) (time.Time, bool) {
	raw, ok := fields[name].(string)
	if !ok {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw)); err == nil {
		return t.In(c.loc), true
	}
	return c.dateField(fields, name)
}

func weekdaysField(fields map[string]any, name string) schedule.Weekdays {
	var values []string
	switch v := fields[name].(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	case []any:
		for _, part := range v {
			switch p := part.(type) {
			case string:
				values = append(values, p)
			case float64:
				values = append(values, strconv.Itoa(int(p)))
			}
		}
	}
	w, err := schedule.ParseWeekdays(values)
	if err != nil {
		return 0
	}
	return w
}
