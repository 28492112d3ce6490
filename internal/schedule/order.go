package schedule

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
)

// labelSentinel sorts items without a parseable week/day label last.
const labelSentinel = 999

var (
	weekPattern = regexp.MustCompile(`(?i)week\s*(\d+)`)
	dayPattern  = regexp.MustCompile(`(?i)day\s*(\d+)`)
)

// Order returns a stably sorted copy of items. Explicit order hints win when
// both items carry one; otherwise items sort by "Week N" then "Day N" labels.
func Order(items []Item) []Item {
	ordered := slices.Clone(items)
	slices.SortStableFunc(ordered, compareItems)
	return ordered
}

func compareItems(a, b Item) int {
	if a.OrderHint != nil && b.OrderHint != nil {
		return cmp.Compare(*a.OrderHint, *b.OrderHint)
	}
	if c := cmp.Compare(labelNumber(weekPattern, a.WeekLabel), labelNumber(weekPattern, b.WeekLabel)); c != 0 {
		return c
	}
	return cmp.Compare(labelNumber(dayPattern, a.DayLabel), labelNumber(dayPattern, b.DayLabel))
}

func labelNumber(pattern *regexp.Regexp, label string) int {
	match := pattern.FindStringSubmatch(label)
	if match == nil {
		return labelSentinel
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return labelSentinel
	}
	return n
}
