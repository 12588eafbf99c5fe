package export

import (
	"strings"
	"testing"

	"tripagent/internal/trip"
)

func TestCalendar(t *testing.T) {
	tr := trip.Trip{
		ID:        "trip1",
		Name:      "Europe 2024",
		StartDate: "2024-06-01",
		EndDate:   "2024-06-10",
		Events: []trip.Event{
			trip.Normalize(map[string]any{
				"id":          "evt-flight",
				"category":    "travel",
				"type":        "flight",
				"title":       "NY to Paris",
				"carrier":     "AF",
				"routeNumber": "AF007",
				"departure": map[string]any{
					"date":     "2024-06-01T10:00:00Z",
					"location": map[string]any{"name": "JFK", "city": "New York", "country": "USA"},
				},
				"arrival": map[string]any{
					"date":     "2024-06-01T18:00:00Z",
					"location": map[string]any{"name": "CDG", "city": "Paris", "country": "France"},
				},
			}),
			trip.Normalize(map[string]any{
				"id":       "evt-walk",
				"category": "experience",
				"title":    "Seine walk",
				"notes":    "Meet at Pont Neuf",
				// Date only: rendered as an all-day entry.
				"startDate": "2024-06-02",
				"endDate":   "2024-06-02",
			}),
			trip.Normalize(map[string]any{
				"id":       "evt-broken",
				"category": "meal",
				"title":    "Unscheduled dinner",
			}),
		},
	}

	out := Calendar(tr)

	if !strings.Contains(out, "BEGIN:VCALENDAR") || !strings.Contains(out, "END:VCALENDAR") {
		t.Fatalf("not a calendar:\n%s", out)
	}
	if !strings.Contains(out, "UID:evt-flight") {
		t.Fatal("flight event missing")
	}
	if !strings.Contains(out, "NY to Paris (AF AF007)") {
		t.Fatal("carrier summary missing")
	}
	if !strings.Contains(out, "JFK") || !strings.Contains(out, "New York") {
		t.Fatal("departure location missing")
	}
	if !strings.Contains(out, "Meet at Pont Neuf") {
		t.Fatal("notes not exported as description")
	}
	// No parsable start date, no entry.
	if strings.Contains(out, "evt-broken") {
		t.Fatal("dateless event must be skipped")
	}
	// Date-only events become all-day entries.
	if !strings.Contains(out, "VALUE=DATE:20240602") {
		t.Fatalf("all-day start missing:\n%s", out)
	}
}
