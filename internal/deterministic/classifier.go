package deterministic

import "strings"

// classifierRow maps question phrasings to an aggregate function name.
// The table is ordered; the first row with a matching phrase wins.
type classifierRow struct {
	function string
	phrases  []string
}

// The catalogue is closed on purpose: unmatched phrasing falls through to the
// model path. False negatives cost a model call; false positives would answer
// a sophisticated question with an oversimplified formula.
var classifierTable = []classifierRow{
	{FuncListCountries, []string{
		"how many countries", "which countries", "what countries", "countries am i visiting", "countries will i visit",
	}},
	{FuncCountFlights, []string{
		"how many flights", "number of flights", "flights am i taking", "flights do i have",
	}},
	{FuncHotelNights, []string{
		"how many nights", "hotel nights", "nights in hotels", "nights am i staying",
	}},
	{FuncLongestLayover, []string{
		"longest layover", "biggest layover", "longest wait between flights",
	}},
	{FuncTotalTravelDuration, []string{
		"total travel time", "total time traveling", "total flight time", "how long will i be traveling",
	}},
	{FuncBusiestDay, []string{
		"busiest day", "most packed day", "day with the most",
	}},
	{FuncFreeDays, []string{
		"free days", "which days are free", "days with no events", "days off",
	}},
	{FuncListCities, []string{
		"which cities", "what cities", "how many cities", "cities am i visiting", "cities will i visit",
	}},
	{FuncTripDuration, []string{
		"how long is my trip", "how long is the trip", "trip duration", "how many days is my trip",
	}},
}

// Classify maps a question to a deterministic function name. The second
// return is false when no row matches and the question must go to the model.
func Classify(question string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return "", false
	}
	for _, row := range classifierTable {
		for _, phrase := range row.phrases {
			if strings.Contains(q, phrase) {
				return row.function, true
			}
		}
	}
	return "", false
}
