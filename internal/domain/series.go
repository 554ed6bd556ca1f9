package domain

import (
	"sort"
	"time"
)

// EventSeries collapses the occurrences sharing one series identity into a
// single displayable row: the representative occurrence plus how many
// occurrences (past and future) the series has.
type EventSeries struct {
	SeriesKey       string `json:"series_key"`
	NextEvent       Event  `json:"next_event"`
	OccurrenceCount int    `json:"occurrence_count"`
	IsRecurring     bool   `json:"is_recurring"`
}

// GroupEventsIntoSeries partitions events by series identity. Every input
// event lands in exactly one series; non-recurring events (and recurring
// events missing a series key) become singletons. The representative is the
// earliest occurrence starting at or after now, falling back to the most
// recent past occurrence when the whole series is behind us.
//
// Events with no usable start time are grouped normally but sort after any
// valid occurrence and are only picked as representative when the whole
// group lacks valid starts. Output is ordered by representative start time
// ascending (unknown starts last); callers may re-sort.
func GroupEventsIntoSeries(now time.Time, events []Event) []EventSeries {
	groups := make(map[string][]Event, len(events))
	for _, e := range events {
		key := seriesGroupKey(e)
		groups[key] = append(groups[key], e)
	}

	out := make([]EventSeries, 0, len(groups))
	for key, group := range groups {
		out = append(out, EventSeries{
			SeriesKey:       key,
			NextEvent:       selectRepresentative(now, group),
			OccurrenceCount: len(group),
			IsRecurring:     group[0].IsRecurring,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].NextEvent, out[j].NextEvent
		if a.StartTime.IsZero() != b.StartTime.IsZero() {
			return !a.StartTime.IsZero()
		}
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return out[i].SeriesKey < out[j].SeriesKey
	})

	return out
}

// seriesGroupKey returns the identity events are collapsed under. Recurring
// events carry an explicit series key assigned at creation time; everything
// else is its own singleton. Title collisions across owners can never merge
// because the key embeds the owner.
func seriesGroupKey(e Event) string {
	if !e.IsRecurring || e.SeriesKey == "" {
		return "event:" + e.ID.String()
	}
	return "series:" + e.SeriesKey
}

func selectRepresentative(now time.Time, group []Event) Event {
	best := -1
	for i, e := range group {
		if e.StartTime.IsZero() || e.StartTime.Before(now) {
			continue
		}
		if best < 0 || e.StartTime.Before(group[best].StartTime) {
			best = i
		}
	}
	if best >= 0 {
		return group[best]
	}

	// Nothing upcoming: show the most recent past occurrence.
	for i, e := range group {
		if e.StartTime.IsZero() {
			continue
		}
		if best < 0 || e.StartTime.After(group[best].StartTime) {
			best = i
		}
	}
	if best >= 0 {
		return group[best]
	}

	// No usable start anywhere in the group. Pick the lowest id so the
	// result is stable across calls.
	best = 0
	for i := 1; i < len(group); i++ {
		if group[i].ID.String() < group[best].ID.String() {
			best = i
		}
	}
	return group[best]
}
