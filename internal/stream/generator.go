package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tripagent/internal/chat"
	"tripagent/internal/config"
	"tripagent/internal/provider"
	"tripagent/internal/query"
	"tripagent/internal/trip"
)

const generateSystemPrompt = "You are a travel planner. Generate an itinerary for the user's " +
	"trip as a single JSON object with one top-level key \"events\", an array of event objects. " +
	"Each event has: category (travel|accommodation|experience|meal), type, title, and per " +
	"category either departure/arrival or checkIn/checkOut objects with {date, name, city, " +
	"country}, or flat startDate/endDate or date fields plus name/city/country. Dates are " +
	"ISO-8601. Output only the JSON object, no prose."

const generateTemperature = 0.7

// GenerateResult is the terminal summary of one generation stream. Events are
// delivered through the callback while the stream runs; only counts and cost
// figures arrive here.
type GenerateResult struct {
	Reply            string  `json:"reply"`
	TokensUsed       int     `json:"tokensUsed"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
	LatencyMS        int64   `json:"latencyMs"`
	EventCount       int     `json:"eventCount"`
}

// Generator produces itinerary events from a natural-language description,
// emitting each event as soon as it is structurally complete in the model's
// output stream.
type Generator struct {
	provider provider.Provider
	pricing  config.PricingConfig
	logger   *slog.Logger
}

func NewGenerator(p provider.Provider, pricing config.PricingConfig, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if pricing.PromptPerMillionUSD <= 0 {
		pricing = config.Default().Pricing
	}
	return &Generator{provider: p, pricing: pricing, logger: logger}
}

// Generate streams generated events into onEvent, then returns the summary.
// Events already emitted before a late failure remain valid; they are never
// retracted.
func (g *Generator) Generate(ctx context.Context, tripName, startDate, endDate, description string, onEvent func(trip.Event)) (GenerateResult, error) {
	start := time.Now()
	extractor := NewExtractor(onEvent, g.logger)

	prompt := fmt.Sprintf("Trip: %s\nDates: %s to %s\nRequest: %s", tripName, startDate, endDate, description)
	resp, err := g.provider.Chat(ctx, provider.ChatRequest{
		Messages: []chat.Message{
			chat.System(generateSystemPrompt),
			chat.User(prompt),
		},
		Temperature: generateTemperature,
	}, &provider.StreamCallbacks{
		OnTextChunk: extractor.Feed,
	})
	summary := extractor.Finish()
	if err != nil {
		return GenerateResult{}, &query.UpstreamCallError{Err: err}
	}

	return GenerateResult{
		Reply:            resp.Content,
		TokensUsed:       resp.Usage.TotalTokens,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		EstimatedCostUSD: query.Cost(g.pricing, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		LatencyMS:        time.Since(start).Milliseconds(),
		EventCount:       summary.EventCount,
	}, nil
}
