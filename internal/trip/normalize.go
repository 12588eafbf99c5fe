package trip

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Field allow-lists per category. Anything outside the active list is
// quarantined into notes instead of being dropped.
var (
	commonFields = []string{"id", "category", "type", "title", "start", "end", "location", "notes"}

	categoryFields = map[Category][]string{
		CategoryTravel:        {"departure", "arrival", "carrier", "routeNumber"},
		CategoryAccommodation: {"checkIn", "checkOut", "placeName"},
		CategoryExperience:    {"startDate", "endDate"},
		CategoryMeal:          {"date"},
	}

	// Legacy accommodation name fields, checked in order when placeName is
	// absent. Once consumed they are not quarantined.
	legacyPlaceNameFields = []string{"placeName", "name", "hotelName", "accommodationName", "propertyName"}
)

// Normalize canonicalizes a loosely-typed event record. It never fails:
// missing sub-objects default to empty, unknown fields are moved into notes,
// start/end are recomputed from the category dates, and a random id is
// assigned when none is present. The input map is not mutated.
func Normalize(raw map[string]any) Event {
	if raw == nil {
		raw = map[string]any{}
	}

	category := parseCategory(stringField(raw, "category"))

	ev := Event{
		ID:       stringField(raw, "id"),
		Category: category,
		Type:     stringField(raw, "type"),
		Title:    stringField(raw, "title"),
		Location: parseLocation(raw["location"]),
		Notes:    stringField(raw, "notes"),
	}

	consumed := map[string]bool{}
	switch category {
	case CategoryTravel:
		ev.Departure = parseLeg(raw["departure"])
		ev.Arrival = parseLeg(raw["arrival"])
		ev.Carrier = stringField(raw, "carrier")
		ev.RouteNumber = stringField(raw, "routeNumber")
	case CategoryAccommodation:
		ev.CheckIn = parseLeg(raw["checkIn"])
		ev.CheckOut = parseLeg(raw["checkOut"])
		ev.PlaceName = backfillPlaceName(raw, consumed)
	case CategoryExperience:
		ev.StartDate = stringField(raw, "startDate")
		ev.EndDate = stringField(raw, "endDate")
	case CategoryMeal:
		ev.Date = stringField(raw, "date")
	}

	ev.Notes = appendUnknownFields(ev.Notes, raw, category, consumed)
	deriveWindow(&ev)

	if strings.TrimSpace(ev.ID) == "" {
		ev.ID = uuid.NewString()
	}
	return ev
}

// deriveWindow recomputes Start/End from the category-specific date fields.
// Input start/end values are never trusted.
func deriveWindow(ev *Event) {
	switch ev.Category {
	case CategoryTravel:
		ev.Start = legDate(ev.Departure)
		ev.End = legDate(ev.Arrival)
	case CategoryAccommodation:
		ev.Start = legDate(ev.CheckIn)
		ev.End = legDate(ev.CheckOut)
	case CategoryExperience:
		ev.Start = ev.StartDate
		ev.End = ev.EndDate
	case CategoryMeal:
		ev.Start = ev.Date
		ev.End = ev.Date
	}
}

func legDate(leg *Leg) string {
	if leg == nil {
		return ""
	}
	return leg.Date
}

func parseCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryTravel:
		return CategoryTravel
	case CategoryAccommodation:
		return CategoryAccommodation
	case CategoryMeal:
		return CategoryMeal
	default:
		return CategoryExperience
	}
}

func backfillPlaceName(raw map[string]any, consumed map[string]bool) string {
	for _, field := range legacyPlaceNameFields {
		if name := stringField(raw, field); name != "" {
			consumed[field] = true
			return name
		}
	}
	return ""
}

// appendUnknownFields quarantines fields outside the allow-list into notes as
// "key: <JSON value>" lines under a single header, sorted for stable output.
func appendUnknownFields(notes string, raw map[string]any, category Category, consumed map[string]bool) string {
	allowed := map[string]bool{}
	for _, f := range commonFields {
		allowed[f] = true
	}
	for _, f := range categoryFields[category] {
		allowed[f] = true
	}

	var unknown []string
	for key := range raw {
		if allowed[key] || consumed[key] {
			continue
		}
		unknown = append(unknown, key)
	}
	if len(unknown) == 0 {
		return notes
	}
	sort.Strings(unknown)

	var b strings.Builder
	b.WriteString(strings.TrimSpace(notes))
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("Additional information:")
	for _, key := range unknown {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s: %s", key, compactJSON(raw[key])))
	}
	return b.String()
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64, bool, int, int64:
		return fmt.Sprintf("%v", val)
	default:
		return ""
	}
}

func parseLocation(v any) Location {
	m, ok := v.(map[string]any)
	if !ok {
		return Location{}
	}
	loc := Location{
		Name:    stringField(m, "name"),
		City:    stringField(m, "city"),
		Country: stringField(m, "country"),
	}
	if geo, ok := m["geolocation"].(map[string]any); ok {
		lat, latOK := numberField(geo, "lat")
		lng, lngOK := numberField(geo, "lng")
		if latOK && lngOK {
			loc.Geolocation = &Geolocation{Lat: lat, Lng: lng}
		}
	}
	return loc
}

func parseLeg(v any) *Leg {
	m, ok := v.(map[string]any)
	if !ok {
		return &Leg{}
	}
	return &Leg{
		Date:     stringField(m, "date"),
		Location: parseLocation(m["location"]),
	}
}

func numberField(raw map[string]any, key string) (float64, bool) {
	switch val := raw[key].(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
