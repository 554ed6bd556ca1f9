package domain

import "time"

// Availability is the tri-state answer to "is the viewer free to attend?".
// Unknown signals insufficient data and must never be collapsed into free
// or busy by callers.
type Availability string

const (
	AvailabilityFree    Availability = "free"
	AvailabilityBusy    Availability = "busy"
	AvailabilityUnknown Availability = "unknown"
)

// pointEventWindow is the duration assigned to events with no end time so
// the overlap test stays deterministic.
const pointEventWindow = time.Minute

// ComputeAvailability reports whether candidate overlaps any of the
// viewer's calendar events. It returns AvailabilityUnknown when the
// calendar is empty or the candidate has no usable start time: absence of
// data is never reported as free or busy.
//
// Intervals are half-open with strict comparisons on both sides, so an
// event ending exactly when another starts does not conflict.
func ComputeAvailability(candidate Event, calendar []Event) Availability {
	if len(calendar) == 0 {
		return AvailabilityUnknown
	}
	if candidate.StartTime.IsZero() {
		return AvailabilityUnknown
	}

	candStart, candEnd := eventWindow(candidate)
	for _, other := range calendar {
		if other.ID == candidate.ID {
			continue
		}
		if other.StartTime.IsZero() {
			continue
		}
		otherStart, otherEnd := eventWindow(other)
		if candStart.Before(otherEnd) && candEnd.After(otherStart) {
			return AvailabilityBusy
		}
	}
	return AvailabilityFree
}

// ComputeSeriesAvailability unwraps the series' representative occurrence
// and compares it against the viewer's calendar.
func ComputeSeriesAvailability(series EventSeries, calendar []Event) Availability {
	return ComputeAvailability(series.NextEvent, calendar)
}

// eventWindow normalizes an event's time span. Missing or inverted end
// times are treated like point events occupying one minute.
func eventWindow(e Event) (time.Time, time.Time) {
	start := e.StartTime
	if e.EndTime != nil && e.EndTime.After(start) {
		return start, *e.EndTime
	}
	return start, start.Add(pointEventWindow)
}
