package deterministic

import (
	"fmt"
	"strings"

	"tripagent/internal/trip"
)

// Function names as they appear in the classifier table and telemetry.
const (
	FuncListCountries       = "listCountries"
	FuncCountFlights        = "countFlights"
	FuncHotelNights         = "calculateHotelNights"
	FuncLongestLayover      = "calculateLongestLayover"
	FuncTotalTravelDuration = "calculateTotalTravelDuration"
	FuncBusiestDay          = "findBusiestDay"
	FuncFreeDays            = "findFreeDays"
	FuncListCities          = "listCities"
	FuncTripDuration        = "calculateTripDuration"
)

// ExecuteFunction dispatches a classified function name to its aggregate and
// templates the result into a sentence. Unknown names return a fixed string
// rather than an error; the classifier is the only legitimate producer of
// names, so an unknown one is a programming mistake worth surfacing in the
// answer text itself.
func ExecuteFunction(name string, events []trip.Event, tripStart, tripEnd string) string {
	switch name {
	case FuncListCountries:
		countries := ListCountries(events)
		if len(countries) == 0 {
			return "No countries are recorded on this trip yet."
		}
		return fmt.Sprintf("You are visiting %d %s: %s.",
			len(countries), plural(len(countries), "country", "countries"), strings.Join(countries, ", "))

	case FuncCountFlights:
		n := CountFlights(events)
		if n == 0 {
			return "There are no flights on this trip."
		}
		return fmt.Sprintf("Your trip includes %d %s.", n, plural(n, "flight", "flights"))

	case FuncHotelNights:
		nights := HotelNights(events)
		if nights == 0 {
			return "There are no hotel nights on this trip."
		}
		return fmt.Sprintf("You are staying %d %s in accommodation.", nights, plural(nights, "night", "nights"))

	case FuncLongestLayover:
		layover := LongestLayover(events)
		if layover == nil {
			return "No layovers found between your travel events."
		}
		return fmt.Sprintf("Your longest layover is %dh %dm.", layover.Hours, layover.Minutes)

	case FuncTotalTravelDuration:
		total := TotalTravelDuration(events)
		if total <= 0 {
			return "No travel durations are recorded on this trip."
		}
		hours := int(total.Hours())
		minutes := int(total.Minutes()) % 60
		return fmt.Sprintf("Your total travel time is %dh %dm.", hours, minutes)

	case FuncBusiestDay:
		day, count := BusiestDay(events)
		if day == "" {
			return "No dated events found on this trip."
		}
		return fmt.Sprintf("Your busiest day is %s with %d %s.", day, count, plural(count, "event", "events"))

	case FuncFreeDays:
		free := FreeDays(events, tripStart, tripEnd)
		if len(free) == 0 {
			return "You have no free days on this trip."
		}
		return fmt.Sprintf("You have %d free %s: %s.",
			len(free), plural(len(free), "day", "days"), strings.Join(free, ", "))

	case FuncListCities:
		cities := ListCities(events)
		if len(cities) == 0 {
			return "No cities are recorded on this trip yet."
		}
		return fmt.Sprintf("Your trip includes %d %s: %s.",
			len(cities), plural(len(cities), "city", "cities"), strings.Join(cities, ", "))

	case FuncTripDuration:
		days := TripDuration(tripStart, tripEnd)
		if days == 0 {
			return "The trip dates are not set, so the duration cannot be computed."
		}
		return fmt.Sprintf("Your trip lasts %d %s.", days, plural(days, "day", "days"))

	default:
		return "Unknown deterministic function."
	}
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
