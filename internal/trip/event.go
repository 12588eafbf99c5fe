package trip

import (
	"encoding/json"
	"time"
)

// Category discriminates the event union. Every consumption site switches
// over all four values; there is no fifth case.
type Category string

const (
	CategoryTravel        Category = "travel"
	CategoryAccommodation Category = "accommodation"
	CategoryExperience    Category = "experience"
	CategoryMeal          Category = "meal"
)

// Geolocation is a well-formed lat/lng pair.
type Geolocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is always present on a canonical event; string fields default to
// empty rather than being omitted.
type Location struct {
	Name        string       `json:"name"`
	City        string       `json:"city"`
	Country     string       `json:"country"`
	Geolocation *Geolocation `json:"geolocation,omitempty"`
}

// Leg is a dated place: a travel departure/arrival or an accommodation
// check-in/check-out.
type Leg struct {
	Date     string   `json:"date"`
	Location Location `json:"location"`
}

// Event is the canonical itinerary event. The Category tag selects which of
// the payload field groups is meaningful; Start/End are derived from the
// category-specific dates at normalization time and never authored directly.
type Event struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Location Location `json:"location"`
	Notes    string   `json:"notes,omitempty"`

	// travel
	Departure   *Leg   `json:"departure,omitempty"`
	Arrival     *Leg   `json:"arrival,omitempty"`
	Carrier     string `json:"carrier,omitempty"`
	RouteNumber string `json:"routeNumber,omitempty"`

	// accommodation
	CheckIn   *Leg   `json:"checkIn,omitempty"`
	CheckOut  *Leg   `json:"checkOut,omitempty"`
	PlaceName string `json:"placeName,omitempty"`

	// experience
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`

	// meal
	Date string `json:"date,omitempty"`
}

// Trip is the owning container. It is supplied by the external store and
// read-only to this engine.
type Trip struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	StartDate string            `json:"startDate"`
	EndDate   string            `json:"endDate"`
	OwnerID   string            `json:"ownerId,omitempty"`
	SharedWith map[string]string `json:"sharedWith,omitempty"`
	Events    []Event           `json:"events,omitempty"`
}

// ToMap round-trips an event through JSON into a loose record, the shape the
// normalizer consumes. Used when merging agent edits over an existing event.
func (e Event) ToMap() map[string]any {
	data, err := json.Marshal(e)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// ParseTime parses the date formats that appear in itinerary data. It accepts
// RFC3339 with or without sub-second precision, a space-separated variant and
// bare dates. Unparsable input yields the zero time, which sorts as epoch 0.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// DateOnly reduces a timestamp string to its calendar-date portion. Events
// are bucketed by this value for busiest-day and free-day computations.
func DateOnly(s string) string {
	t := ParseTime(s)
	if t.IsZero() {
		if len(s) >= 10 {
			return s[:10]
		}
		return s
	}
	return t.Format("2006-01-02")
}
