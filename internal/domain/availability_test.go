package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func timedEvent(id string, start time.Time, end *time.Time) Event {
	return Event{
		ID:        uuid.MustParse(id),
		UserID:    "u1",
		Title:     "t",
		StartTime: start,
		EndTime:   end,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestComputeAvailability_UnknownOnMissingData(t *testing.T) {
	start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	candidate := timedEvent("00000000-0000-0000-0000-000000000001", start, timePtr(start.Add(time.Hour)))
	calendar := []Event{
		timedEvent("00000000-0000-0000-0000-000000000002", start, timePtr(start.Add(time.Hour))),
	}

	if got := ComputeAvailability(candidate, nil); got != AvailabilityUnknown {
		t.Fatalf("availability = %q, want %q", got, AvailabilityUnknown)
	}
	if got := ComputeAvailability(candidate, []Event{}); got != AvailabilityUnknown {
		t.Fatalf("availability = %q, want %q", got, AvailabilityUnknown)
	}

	noStart := candidate
	noStart.StartTime = time.Time{}
	if got := ComputeAvailability(noStart, calendar); got != AvailabilityUnknown {
		t.Fatalf("availability = %q, want %q", got, AvailabilityUnknown)
	}
}

func TestComputeAvailability_NeverConflictsWithItself(t *testing.T) {
	start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	e := timedEvent("00000000-0000-0000-0000-000000000003", start, timePtr(start.Add(time.Hour)))

	if got := ComputeAvailability(e, []Event{e}); got != AvailabilityFree {
		t.Fatalf("availability = %q, want %q", got, AvailabilityFree)
	}
}

func TestComputeAvailability_OverlapRule(t *testing.T) {
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	tests := []struct {
		name       string
		candStart  time.Time
		candEnd    *time.Time
		otherStart time.Time
		otherEnd   *time.Time
		want       Availability
	}{
		{
			name:       "contained overlap is busy",
			candStart:  at(14, 0),
			candEnd:    timePtr(at(15, 0)),
			otherStart: at(14, 30),
			otherEnd:   timePtr(at(14, 45)),
			want:       AvailabilityBusy,
		},
		{
			name:       "back to back is free",
			candStart:  at(14, 0),
			candEnd:    timePtr(at(15, 0)),
			otherStart: at(15, 0),
			otherEnd:   timePtr(at(16, 0)),
			want:       AvailabilityFree,
		},
		{
			name:       "point event occupies one minute",
			candStart:  at(9, 0),
			candEnd:    nil,
			otherStart: at(9, 0),
			otherEnd:   timePtr(at(9, 2)),
			want:       AvailabilityBusy,
		},
		{
			name:       "point event just after is free",
			candStart:  at(9, 2),
			candEnd:    nil,
			otherStart: at(9, 0),
			otherEnd:   timePtr(at(9, 2)),
			want:       AvailabilityFree,
		},
		{
			name:       "partial overlap at the front is busy",
			candStart:  at(13, 30),
			candEnd:    timePtr(at(14, 30)),
			otherStart: at(14, 0),
			otherEnd:   timePtr(at(15, 0)),
			want:       AvailabilityBusy,
		},
		{
			name:       "disjoint windows are free",
			candStart:  at(8, 0),
			candEnd:    timePtr(at(9, 0)),
			otherStart: at(10, 0),
			otherEnd:   timePtr(at(11, 0)),
			want:       AvailabilityFree,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := timedEvent("00000000-0000-0000-0000-000000000004", tt.candStart, tt.candEnd)
			other := timedEvent("00000000-0000-0000-0000-000000000005", tt.otherStart, tt.otherEnd)

			if got := ComputeAvailability(candidate, []Event{other}); got != tt.want {
				t.Fatalf("availability = %q, want %q", got, tt.want)
			}

			// The conflict predicate must be symmetric.
			reversed := ComputeAvailability(other, []Event{candidate})
			if (reversed == AvailabilityBusy) != (tt.want == AvailabilityBusy) {
				t.Fatalf("reversed availability = %q, not symmetric with %q", reversed, tt.want)
			}
		})
	}
}

func TestComputeAvailability_SkipsCalendarEntriesWithoutStart(t *testing.T) {
	start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	candidate := timedEvent("00000000-0000-0000-0000-000000000006", start, timePtr(start.Add(time.Hour)))
	calendar := []Event{
		timedEvent("00000000-0000-0000-0000-000000000007", time.Time{}, nil),
		timedEvent("00000000-0000-0000-0000-000000000008", start.Add(3*time.Hour), timePtr(start.Add(4*time.Hour))),
	}

	if got := ComputeAvailability(candidate, calendar); got != AvailabilityFree {
		t.Fatalf("availability = %q, want %q", got, AvailabilityFree)
	}
}

func TestComputeSeriesAvailability_UnwrapsNextEvent(t *testing.T) {
	start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	series := EventSeries{
		SeriesKey:       "series:u1:k",
		NextEvent:       timedEvent("00000000-0000-0000-0000-000000000009", start, timePtr(start.Add(time.Hour))),
		OccurrenceCount: 3,
		IsRecurring:     true,
	}
	calendar := []Event{
		timedEvent("00000000-0000-0000-0000-00000000000a", start.Add(30*time.Minute), timePtr(start.Add(45*time.Minute))),
	}

	if got := ComputeSeriesAvailability(series, calendar); got != AvailabilityBusy {
		t.Fatalf("availability = %q, want %q", got, AvailabilityBusy)
	}
}
