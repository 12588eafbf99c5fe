package aicontext

import (
	"sort"

	"tripagent/internal/trip"
)

// FlatEvent is the compact per-event representation sent to the model.
// Category-specific detail goes into Metadata; empty metadata is dropped.
type FlatEvent struct {
	ID       string            `json:"id"`
	Category string            `json:"category"`
	Type     string            `json:"type,omitempty"`
	Title    string            `json:"title"`
	Start    string            `json:"start,omitempty"`
	End      string            `json:"end,omitempty"`
	Country  string            `json:"country,omitempty"`
	City     string            `json:"city,omitempty"`
	Venue    string            `json:"venue,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Context is the object handed to the model alongside the question.
type Context struct {
	TripName  string      `json:"tripName"`
	StartDate string      `json:"startDate,omitempty"`
	EndDate   string      `json:"endDate,omitempty"`
	Events    []FlatEvent `json:"events"`
}

// Flatten reduces a canonical event to its query-context shape.
func Flatten(ev trip.Event) FlatEvent {
	flat := FlatEvent{
		ID:       ev.ID,
		Category: string(ev.Category),
		Type:     ev.Type,
		Title:    ev.Title,
		Start:    ev.Start,
		End:      ev.End,
		Country:  ev.Location.Country,
		City:     ev.Location.City,
		Venue:    ev.Location.Name,
	}

	meta := map[string]string{}
	switch ev.Category {
	case trip.CategoryTravel:
		putMeta(meta, "carrier", ev.Carrier)
		putMeta(meta, "routeNumber", ev.RouteNumber)
		if ev.Departure != nil {
			putMeta(meta, "from", placeLabel(ev.Departure.Location))
		}
		if ev.Arrival != nil {
			putMeta(meta, "to", placeLabel(ev.Arrival.Location))
			if flat.Country == "" {
				flat.Country = ev.Arrival.Location.Country
			}
			if flat.City == "" {
				flat.City = ev.Arrival.Location.City
			}
		}
	case trip.CategoryAccommodation:
		putMeta(meta, "placeName", ev.PlaceName)
		if ev.CheckIn != nil {
			putMeta(meta, "checkIn", ev.CheckIn.Date)
			if flat.Country == "" {
				flat.Country = ev.CheckIn.Location.Country
			}
			if flat.City == "" {
				flat.City = ev.CheckIn.Location.City
			}
		}
		if ev.CheckOut != nil {
			putMeta(meta, "checkOut", ev.CheckOut.Date)
		}
		if flat.Venue == "" {
			flat.Venue = ev.PlaceName
		}
	case trip.CategoryExperience, trip.CategoryMeal:
		// Location fields already carry everything these categories have.
	}
	if len(meta) > 0 {
		flat.Metadata = meta
	}
	return flat
}

// SerializeEvents flattens and orders events by start ascending. The sort is
// stable; events with an unparsable start sort as epoch 0.
func SerializeEvents(events []trip.Event) []FlatEvent {
	out := make([]FlatEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, Flatten(ev))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return trip.ParseTime(out[i].Start).Before(trip.ParseTime(out[j].Start))
	})
	return out
}

// NewContext wraps trip identity and the serialized events into the payload
// sent to the model.
func NewContext(tripName, startDate, endDate string, events []trip.Event) Context {
	return Context{
		TripName:  tripName,
		StartDate: startDate,
		EndDate:   endDate,
		Events:    SerializeEvents(events),
	}
}

func putMeta(meta map[string]string, key, value string) {
	if value != "" {
		meta[key] = value
	}
}

func placeLabel(loc trip.Location) string {
	switch {
	case loc.City != "" && loc.Country != "":
		return loc.City + ", " + loc.Country
	case loc.City != "":
		return loc.City
	case loc.Country != "":
		return loc.Country
	default:
		return loc.Name
	}
}
