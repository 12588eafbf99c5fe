package deterministic

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"tripagent/internal/trip"
)

// maxLayover is the cutoff above which a gap between flights is a stay, not
// a layover.
const maxLayover = 48 * time.Hour

// Layover is the gap between one travel arrival and the next departure.
type Layover struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// ListCountries returns the distinct countries referenced by travel legs,
// accommodation check-ins and generic locations, in first-seen order.
func ListCountries(events []trip.Event) []string {
	var countries []string
	for _, ev := range events {
		switch ev.Category {
		case trip.CategoryTravel:
			if ev.Departure != nil {
				countries = append(countries, ev.Departure.Location.Country)
			}
			if ev.Arrival != nil {
				countries = append(countries, ev.Arrival.Location.Country)
			}
		case trip.CategoryAccommodation:
			if ev.CheckIn != nil {
				countries = append(countries, ev.CheckIn.Location.Country)
			}
		}
		countries = append(countries, ev.Location.Country)
	}
	return lo.Uniq(lo.Filter(countries, func(c string, _ int) bool { return c != "" }))
}

// CountCountries is len(ListCountries).
func CountCountries(events []trip.Event) int {
	return len(ListCountries(events))
}

// ListCities returns the distinct cities across all events, in first-seen
// order.
func ListCities(events []trip.Event) []string {
	var cities []string
	for _, ev := range events {
		switch ev.Category {
		case trip.CategoryTravel:
			if ev.Departure != nil {
				cities = append(cities, ev.Departure.Location.City)
			}
			if ev.Arrival != nil {
				cities = append(cities, ev.Arrival.Location.City)
			}
		case trip.CategoryAccommodation:
			if ev.CheckIn != nil {
				cities = append(cities, ev.CheckIn.Location.City)
			}
		}
		cities = append(cities, ev.Location.City)
	}
	return lo.Uniq(lo.Filter(cities, func(c string, _ int) bool { return c != "" }))
}

// CountFlights counts travel events whose subtype is flight.
func CountFlights(events []trip.Event) int {
	return lo.CountBy(events, func(ev trip.Event) bool {
		return ev.Category == trip.CategoryTravel && ev.Type == "flight"
	})
}

// HotelNights sums ceil(checkOut-checkIn) in days over all accommodation
// events; partial days round up.
func HotelNights(events []trip.Event) int {
	nights := 0
	for _, ev := range events {
		if ev.Category != trip.CategoryAccommodation || ev.CheckIn == nil || ev.CheckOut == nil {
			continue
		}
		in := trip.ParseTime(ev.CheckIn.Date)
		out := trip.ParseTime(ev.CheckOut.Date)
		if in.IsZero() || out.IsZero() || !out.After(in) {
			continue
		}
		nights += int(math.Ceil(out.Sub(in).Hours() / 24))
	}
	return nights
}

// LongestLayover finds the largest gap between one travel arrival and the
// next departure after sorting travel events by start. Gaps that are not
// positive, or that reach 48 hours, are not genuine same-trip layovers and
// are discarded. Returns nil when no candidate survives.
func LongestLayover(events []trip.Event) *Layover {
	travel := lo.Filter(events, func(ev trip.Event, _ int) bool {
		return ev.Category == trip.CategoryTravel && ev.Departure != nil && ev.Arrival != nil
	})
	sort.SliceStable(travel, func(i, j int) bool {
		return trip.ParseTime(travel[i].Start).Before(trip.ParseTime(travel[j].Start))
	})

	var longest time.Duration
	found := false
	for i := 0; i+1 < len(travel); i++ {
		arrive := trip.ParseTime(travel[i].Arrival.Date)
		depart := trip.ParseTime(travel[i+1].Departure.Date)
		if arrive.IsZero() || depart.IsZero() {
			continue
		}
		gap := depart.Sub(arrive)
		if gap <= 0 || gap >= maxLayover {
			continue
		}
		if gap > longest {
			longest = gap
			found = true
		}
	}
	if !found {
		return nil
	}
	return &Layover{
		Hours:   int(longest.Hours()),
		Minutes: int(longest.Minutes()) % 60,
	}
}

// TotalTravelDuration sums arrival-departure over all travel events.
func TotalTravelDuration(events []trip.Event) time.Duration {
	var total time.Duration
	for _, ev := range events {
		if ev.Category != trip.CategoryTravel || ev.Departure == nil || ev.Arrival == nil {
			continue
		}
		depart := trip.ParseTime(ev.Departure.Date)
		arrive := trip.ParseTime(ev.Arrival.Date)
		if depart.IsZero() || arrive.IsZero() || !arrive.After(depart) {
			continue
		}
		total += arrive.Sub(depart)
	}
	return total
}

// BusiestDay buckets events by the date portion of start and reports the
// bucket with the strictly greatest count. Tie-break: the bucket that first
// reaches the maximum while scanning events in their original array order
// wins. This is documented scan-order behavior, not a secondary sort.
func BusiestDay(events []trip.Event) (string, int) {
	counts := map[string]int{}
	bestDay := ""
	bestCount := 0
	for _, ev := range events {
		day := trip.DateOnly(ev.Start)
		if day == "" {
			continue
		}
		counts[day]++
		if counts[day] > bestCount {
			bestCount = counts[day]
			bestDay = day
		}
	}
	return bestDay, bestCount
}

// FreeDays lists the days in the inclusive [startDate, endDate] range with no
// event whose start falls on that date.
func FreeDays(events []trip.Event, startDate, endDate string) []string {
	start := trip.ParseTime(startDate)
	end := trip.ParseTime(endDate)
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil
	}

	busy := map[string]bool{}
	for _, ev := range events {
		if day := trip.DateOnly(ev.Start); day != "" {
			busy[day] = true
		}
	}

	var free []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := d.Format("2006-01-02")
		if !busy[day] {
			free = append(free, day)
		}
	}
	return free
}

// TripDuration is the inclusive day count between the trip bounds, partial
// days rounded up. Returns 0 when either bound is missing or inverted.
func TripDuration(startDate, endDate string) int {
	start := trip.ParseTime(startDate)
	end := trip.ParseTime(endDate)
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return int(math.Ceil(end.Sub(start).Hours()/24)) + 1
}
