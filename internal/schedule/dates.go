package schedule

import (
	"iter"
	"slices"
	"time"
)

// DateSeq yields up to count dates on or after start whose weekday is in
// weekdays, scanning at most maxLookaheadDays calendar days. The sequence
// holds no state and can be ranged over repeatedly.
func DateSeq(start time.Time, weekdays Weekdays, count, maxLookaheadDays int) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if weekdays.Empty() || count <= 0 {
			return
		}
		day := Day(start)
		emitted := 0
		for scanned := 0; scanned < maxLookaheadDays && emitted < count; scanned++ {
			if weekdays.Has(day.Weekday()) {
				emitted++
				if !yield(day) {
					return
				}
			}
			day = day.AddDate(0, 0, 1)
		}
	}
}

// Dates collects DateSeq. A result shorter than count means the look-ahead
// window ran out first.
func Dates(start time.Time, weekdays Weekdays, count, maxLookaheadDays int) []time.Time {
	return slices.Collect(DateSeq(start, weekdays, count, maxLookaheadDays))
}
