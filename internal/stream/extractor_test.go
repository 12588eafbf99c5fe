package stream

import (
	"context"
	"strings"
	"testing"

	"tripagent/internal/config"
	"tripagent/internal/provider"
	"tripagent/internal/trip"
)

func collect(t *testing.T, chunks ...string) ([]trip.Event, Summary) {
	t.Helper()
	var events []trip.Event
	x := NewExtractor(func(e trip.Event) { events = append(events, e) }, nil)
	for _, c := range chunks {
		x.Feed(c)
	}
	return events, x.Finish()
}

func TestExtractor_BraceInsideStringAtEveryChunkBoundary(t *testing.T) {
	payload := `{"events":[{"title":"A}B"},{"title":"C"}]}`
	for cut := 0; cut <= len(payload); cut++ {
		events, summary := collect(t, payload[:cut], payload[cut:])
		if len(events) != 2 {
			t.Fatalf("cut %d: emitted %d events, want 2", cut, len(events))
		}
		if events[0].Title != "A}B" || events[1].Title != "C" {
			t.Fatalf("cut %d: titles = %q, %q", cut, events[0].Title, events[1].Title)
		}
		if summary.EventCount != 2 || summary.Skipped != 0 {
			t.Fatalf("cut %d: summary = %+v", cut, summary)
		}
	}
}

func TestExtractor_SingleByteChunks(t *testing.T) {
	payload := `{"events":[{"category":"meal","title":"Dinner","date":"2024-06-02"},{"title":"Walk"}]}`
	var events []trip.Event
	x := NewExtractor(func(e trip.Event) { events = append(events, e) }, nil)
	for i := 0; i < len(payload); i++ {
		x.Feed(payload[i : i+1])
	}
	if len(events) != 2 {
		t.Fatalf("emitted %d events", len(events))
	}
	if events[0].Start != "2024-06-02" {
		t.Fatalf("meal window = %q", events[0].Start)
	}
}

func TestExtractor_EscapedQuoteInsideString(t *testing.T) {
	payload := `{"events":[{"title":"Say \"hi\"}"},{"title":"Next"}]}`
	events, _ := collect(t, payload)
	if len(events) != 2 {
		t.Fatalf("emitted %d events", len(events))
	}
	if events[0].Title != `Say "hi"}` {
		t.Fatalf("title = %q", events[0].Title)
	}
}

func TestExtractor_NestedObjectsStayOneEvent(t *testing.T) {
	payload := `{"events":[{"category":"travel","type":"flight","title":"NY to Paris",` +
		`"departure":{"date":"2024-06-01T10:00:00Z","name":"JFK","city":"New York","country":"USA"},` +
		`"arrival":{"date":"2024-06-01T18:00:00Z","name":"CDG","city":"Paris","country":"France"}}]}`
	events, _ := collect(t, payload)
	if len(events) != 1 {
		t.Fatalf("emitted %d events", len(events))
	}
	e := events[0]
	if e.Category != trip.CategoryTravel {
		t.Fatalf("category = %q", e.Category)
	}
	// Lean legs are expanded to the canonical nested shape.
	if e.Departure == nil || e.Departure.Location.City != "New York" {
		t.Fatalf("departure = %+v", e.Departure)
	}
	if e.Arrival == nil || e.Arrival.Location.Country != "France" {
		t.Fatalf("arrival = %+v", e.Arrival)
	}
	if e.Start != "2024-06-01T10:00:00Z" || e.End != "2024-06-01T18:00:00Z" {
		t.Fatalf("window = %q..%q", e.Start, e.End)
	}
	if e.ID == "" {
		t.Fatal("generated event needs a placeholder id")
	}
}

func TestExtractor_LeanPlaceFieldsBecomeLocation(t *testing.T) {
	payload := `{"events":[{"category":"experience","type":"tour","title":"Louvre",` +
		`"startDate":"2024-06-03T10:00:00Z","endDate":"2024-06-03T13:00:00Z",` +
		`"name":"Louvre","city":"Paris","country":"France"}]}`
	events, _ := collect(t, payload)
	if len(events) != 1 {
		t.Fatalf("emitted %d events", len(events))
	}
	loc := events[0].Location
	if loc.Name != "Louvre" || loc.City != "Paris" || loc.Country != "France" {
		t.Fatalf("location = %+v", loc)
	}
	// Flat fields must not leak into the notes quarantine.
	if strings.Contains(events[0].Notes, "city") {
		t.Fatalf("notes = %q", events[0].Notes)
	}
}

func TestExtractor_MalformedEventSkippedStreamContinues(t *testing.T) {
	// Balanced braces but invalid JSON in the middle event.
	payload := `{"events":[{"title":"Good"},{bad json here},{"title":"Also good"}]}`
	events, summary := collect(t, payload)
	if len(events) != 2 {
		t.Fatalf("emitted %d events", len(events))
	}
	if summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if events[0].Title != "Good" || events[1].Title != "Also good" {
		t.Fatalf("titles = %q, %q", events[0].Title, events[1].Title)
	}
}

func TestExtractor_TruncatedStream(t *testing.T) {
	events, summary := collect(t, `{"events":[{"title":"Done"},{"title":"Cut of`)
	if len(events) != 1 {
		t.Fatalf("emitted %d events", len(events))
	}
	if summary.EventCount != 1 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestExtractor_TextAfterArrayIsInert(t *testing.T) {
	events, summary := collect(t, `{"events":[{"title":"Only"}],"note":"{not an event}"}`)
	if len(events) != 1 || summary.EventCount != 1 {
		t.Fatalf("events = %d, summary = %+v", len(events), summary)
	}
}

func TestExtractor_EmptyArray(t *testing.T) {
	events, summary := collect(t, `{"events":[]}`)
	if len(events) != 0 || summary.EventCount != 0 || summary.Skipped != 0 {
		t.Fatalf("events = %d, summary = %+v", len(events), summary)
	}
}

type streamingProvider struct {
	chunks []string
	usage  provider.Usage
}

func (s *streamingProvider) Chat(_ context.Context, _ provider.ChatRequest, cb *provider.StreamCallbacks) (provider.ChatResponse, error) {
	var full strings.Builder
	for _, c := range s.chunks {
		full.WriteString(c)
		if cb != nil && cb.OnTextChunk != nil {
			cb.OnTextChunk(c)
		}
	}
	return provider.ChatResponse{Content: full.String(), Usage: s.usage}, nil
}

func (s *streamingProvider) CurrentModel() string { return "fake-model" }

func TestGenerate_WiresStreamIntoExtractor(t *testing.T) {
	fake := &streamingProvider{
		chunks: []string{
			`{"events":[{"category":"meal","title":"Din`,
			`ner","date":"2024-06-02"},{"category":"experience",`,
			`"title":"Walk","startDate":"2024-06-03"}]}`,
		},
		usage: provider.Usage{PromptTokens: 400, CompletionTokens: 100, TotalTokens: 500},
	}
	g := NewGenerator(fake, config.PricingConfig{PromptPerMillionUSD: 0.15, CompletionPerMillionUSD: 0.60}, nil)

	var seen []trip.Event
	res, err := g.Generate(context.Background(), "Europe 2024", "2024-06-01", "2024-06-10",
		"A relaxed weekend in Paris", func(e trip.Event) { seen = append(seen, e) })
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(seen) != 2 || res.EventCount != 2 {
		t.Fatalf("events = %d, result = %+v", len(seen), res)
	}
	if seen[0].Title != "Dinner" || seen[1].Title != "Walk" {
		t.Fatalf("titles = %q, %q", seen[0].Title, seen[1].Title)
	}
	if res.TokensUsed != 500 {
		t.Fatalf("tokens = %d", res.TokensUsed)
	}
	if res.EstimatedCostUSD == 0 {
		t.Fatal("cost should be computed from usage")
	}
}
