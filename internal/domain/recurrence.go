package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const (
	// DefaultRecurrenceLookahead bounds how far ahead occurrences are
	// materialized when a recurring event is created.
	DefaultRecurrenceLookahead = 180 * 24 * time.Hour

	// DefaultMaxOccurrences caps expansion so an unbounded rule cannot
	// flood the store.
	DefaultMaxOccurrences = 52
)

// RecurrenceRule is an RFC 5545 RRULE plus the timezone its local times are
// interpreted in.
type RecurrenceRule struct {
	RRule    string
	TimeZone string
}

type ExpandOptions struct {
	Lookahead      time.Duration
	MaxOccurrences int
}

// ExpandRecurrence returns the UTC start times produced by rule from start
// (inclusive) up to the lookahead horizon, truncated at MaxOccurrences.
func ExpandRecurrence(rule RecurrenceRule, start time.Time, opts ExpandOptions) ([]time.Time, error) {
	if start.IsZero() {
		return nil, errors.New("start_time is required")
	}

	tz := strings.TrimSpace(rule.TimeZone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.New("invalid time_zone")
	}

	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rule.RRule), "RRULE:"))
	if raw == "" {
		return nil, errors.New("recurrence rule is required")
	}
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, errors.New("invalid recurrence rule")
	}

	lookahead := opts.Lookahead
	if lookahead <= 0 {
		lookahead = DefaultRecurrenceLookahead
	}
	maxOccurrences := opts.MaxOccurrences
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}

	r.DTStart(start.In(loc))

	times := r.Between(start.In(loc), start.In(loc).Add(lookahead), true)
	if len(times) == 0 {
		return nil, errors.New("recurrence rule produces no occurrences")
	}
	if len(times) > maxOccurrences {
		times = times[:maxOccurrences]
	}

	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		out = append(out, t.UTC())
	}
	return out, nil
}
