package export

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"tripagent/internal/trip"
)

// Calendar renders a trip's canonical events as an iCalendar document. Events
// whose start date cannot be parsed are left out; a calendar with wrong times
// is worse than one with a missing entry.
func Calendar(t trip.Trip) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//tripagent//itinerary//EN")
	if t.Name != "" {
		cal.SetName(t.Name)
	}

	now := time.Now().UTC()
	for _, e := range t.Events {
		start := trip.ParseTime(e.Start)
		if start.IsZero() {
			continue
		}
		ve := cal.AddEvent(e.ID)
		ve.SetDtStampTime(now)
		ve.SetSummary(summaryLine(e))

		end := trip.ParseTime(e.End)
		if allDay(e.Start) {
			ve.SetAllDayStartAt(start)
			if !end.IsZero() {
				// DTEND is exclusive for all-day events.
				ve.SetAllDayEndAt(end.AddDate(0, 0, 1))
			}
		} else {
			ve.SetStartAt(start)
			if !end.IsZero() && !end.Before(start) {
				ve.SetEndAt(end)
			}
		}

		if loc := locationLine(e); loc != "" {
			ve.SetLocation(loc)
		}
		if e.Notes != "" {
			ve.SetDescription(e.Notes)
		}
	}
	return cal.Serialize()
}

// allDay reports whether a stored date string carries no time component.
func allDay(s string) bool {
	return len(s) == 10 && !strings.Contains(s, "T")
}

func summaryLine(e trip.Event) string {
	switch e.Category {
	case trip.CategoryTravel:
		if e.Carrier != "" && e.RouteNumber != "" {
			return fmt.Sprintf("%s (%s %s)", e.Title, e.Carrier, e.RouteNumber)
		}
	case trip.CategoryAccommodation:
		if e.PlaceName != "" && e.PlaceName != e.Title {
			return fmt.Sprintf("%s (%s)", e.Title, e.PlaceName)
		}
	}
	return e.Title
}

// locationLine prefers the most specific place we know about. Travel events
// use the departure leg, accommodation the check-in leg.
func locationLine(e trip.Event) string {
	loc := e.Location
	switch e.Category {
	case trip.CategoryTravel:
		if e.Departure != nil && e.Departure.Location != (trip.Location{}) {
			loc = e.Departure.Location
		}
	case trip.CategoryAccommodation:
		if e.CheckIn != nil && e.CheckIn.Location != (trip.Location{}) {
			loc = e.CheckIn.Location
		}
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{loc.Name, loc.City, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
