// Package ics renders calendar events as an iCalendar document.
package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"gatherly/backend/internal/domain"
)

// Encode serializes the events into a VCALENDAR. Events without a start
// time are skipped; point events get a one minute window so consumers
// render them as busy time.
func Encode(prodID string, events []domain.Event) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//" + prodID + "//EN")

	for _, ev := range events {
		if ev.StartTime.IsZero() {
			continue
		}

		start := ev.StartTime.UTC()
		end := start.Add(time.Minute)
		if ev.EndTime != nil && ev.EndTime.After(start) {
			end = ev.EndTime.UTC()
		}

		entry := cal.AddEvent(ev.ID.String())
		entry.SetDtStampTime(time.Now().UTC())
		entry.SetStartAt(start)
		entry.SetEndAt(end)
		entry.SetSummary(ev.Title)
		if ev.Description != "" {
			entry.SetDescription(ev.Description)
		}
	}

	return cal.Serialize()
}
