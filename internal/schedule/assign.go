package schedule

import (
	"fmt"
	"time"
)

const (
	DefaultBatchSize            = 30
	DefaultPlanLookaheadDays    = 90
	DefaultCascadeLookaheadDays = 180
)

// Assigner turns an ordered backlog into date assignments. It never writes
// anything; persisting the result is the caller's job.
type Assigner struct {
	now func() time.Time
	loc *time.Location
	// seriesStartFloor holds plans back until the series has started.
	seriesStartFloor bool
}

// NewAssigner returns an Assigner computing "today" in loc.
func NewAssigner(loc *time.Location) *Assigner {
	if loc == nil {
		loc = time.Local
	}
	return &Assigner{now: time.Now, loc: loc}
}

// WithClock replaces the wall clock, for tests.
func (a *Assigner) WithClock(now func() time.Time) *Assigner {
	a.now = now
	return a
}

// WithSeriesStartFloor makes PlanNextBatch start at the series start date
// when that is later than today.
func (a *Assigner) WithSeriesStartFloor() *Assigner {
	a.seriesStartFloor = true
	return a
}

// Today is the current local date with time-of-day truncated.
func (a *Assigner) Today() time.Time {
	return Day(a.now().In(a.loc))
}

// PlanNextBatch assigns up to batchSize dates, starting today, to the items
// following the most recently completed one. Items before the resume point
// and beyond the generated dates are left out of the result.
func (a *Assigner) PlanNextBatch(backlog []Item, series *Series, batchSize, maxLookaheadDays int) ([]Assignment, error) {
	if series == nil || !series.Active() {
		return nil, ErrNoActiveSeries
	}
	if len(backlog) == 0 {
		return nil, ErrEmptyBacklog
	}

	resume := ResumePosition(backlog)
	start := a.Today()
	if a.seriesStartFloor {
		if seriesStart := Day(series.StartDate.In(a.loc)); seriesStart.After(start) {
			start = seriesStart
		}
	}

	dates := Dates(start, series.Weekdays, batchSize, maxLookaheadDays)
	return zip(backlog[resume:], dates), nil
}

// ResumePosition is the index after the item with the latest completion
// marker, or 0 when nothing is completed. Ties go to the later position.
func ResumePosition(backlog []Item) int {
	latest := -1
	var latestAt time.Time
	for i, item := range backlog {
		if !item.Completed() {
			continue
		}
		if latest < 0 || !item.CompletedAt.Before(latestAt) {
			latest = i
			latestAt = *item.CompletedAt
		}
	}
	return latest + 1
}

// CascadeReschedule pins movedID to newDate and re-dates every later item on
// the series weekdays starting the day after newDate. newDate itself is not
// checked against the weekday filter.
func (a *Assigner) CascadeReschedule(backlog []Item, movedID string, newDate time.Time, series *Series, maxLookaheadDays int) ([]Assignment, error) {
	if series == nil || !series.Active() {
		return nil, ErrNoActiveSeries
	}
	if len(backlog) == 0 {
		return nil, ErrEmptyBacklog
	}

	moved := -1
	for i, item := range backlog {
		if item.ID == movedID {
			moved = i
			break
		}
	}
	if moved < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, movedID)
	}

	pinned := Day(newDate.In(a.loc))
	assignments := []Assignment{{ItemID: backlog[moved].ID, Title: backlog[moved].Title, Date: pinned}}

	downstream := backlog[moved+1:]
	dates := Dates(pinned.AddDate(0, 0, 1), series.Weekdays, len(downstream), maxLookaheadDays)
	return append(assignments, zip(downstream, dates)...), nil
}

func zip(items []Item, dates []time.Time) []Assignment {
	n := min(len(items), len(dates))
	out := make([]Assignment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Assignment{ItemID: items[i].ID, Title: items[i].Title, Date: dates[i]})
	}
	return out
}
