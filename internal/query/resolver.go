package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tripagent/internal/aicontext"
	"tripagent/internal/chat"
	"tripagent/internal/config"
	"tripagent/internal/deterministic"
	"tripagent/internal/provider"
	"tripagent/internal/storage"
	"tripagent/internal/trip"
)

// systemPrompt instructs the model to reason over the serialized itinerary.
// Dates come as ISO-8601 strings, so date arithmetic is called out explicitly.
const systemPrompt = "You are a travel itinerary assistant. Answer questions using only the " +
	"provided trip context. All timestamps are ISO-8601; when a question needs date or " +
	"duration arithmetic, compute it step by step from those timestamps rather than " +
	"estimating. Keep answers concise and grounded in the data."

// queryTemperature favors deterministic phrasing over creative variation.
const queryTemperature = 0.1

// Answer is the resolver's result for one question.
type Answer struct {
	Answer           string  `json:"answer"`
	TokensUsed       int     `json:"tokensUsed"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
	LatencyMS        int64   `json:"latencyMs"`
	Cached           bool    `json:"cached,omitempty"`
	Deterministic    bool    `json:"deterministic,omitempty"`
}

// Resolver orchestrates one question end to end: validation, cache lookup,
// deterministic short-circuit, context-size guard, model call, sanitization,
// cache write and usage telemetry.
type Resolver struct {
	provider  provider.Provider
	cache     storage.CacheStore
	usage     storage.UsageStore
	tokenizer *aicontext.Tokenizer
	limits    config.LimitsConfig
	pricing   config.PricingConfig
	logger    *slog.Logger
}

// Options carries the optional resolver collaborators. Usage may be nil when
// telemetry is not wanted; Logger and Tokenizer default sensibly.
type Options struct {
	Usage     storage.UsageStore
	Tokenizer *aicontext.Tokenizer
	Limits    config.LimitsConfig
	Pricing   config.PricingConfig
	Logger    *slog.Logger
}

// NewResolver wires a resolver from explicitly constructed dependencies.
func NewResolver(p provider.Provider, cache storage.CacheStore, opts Options) *Resolver {
	if opts.Tokenizer == nil {
		opts.Tokenizer = aicontext.DefaultTokenizer()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	def := config.Default()
	if opts.Limits.MaxQuestionLen <= 0 {
		opts.Limits.MaxQuestionLen = def.Limits.MaxQuestionLen
	}
	if opts.Limits.QueryTokenCeiling <= 0 {
		opts.Limits.QueryTokenCeiling = def.Limits.QueryTokenCeiling
	}
	if opts.Limits.AnswerMaxLen <= 0 {
		opts.Limits.AnswerMaxLen = def.Limits.AnswerMaxLen
	}
	if opts.Pricing.PromptPerMillionUSD <= 0 {
		opts.Pricing = def.Pricing
	}
	return &Resolver{
		provider:  p,
		cache:     cache,
		usage:     opts.Usage,
		tokenizer: opts.Tokenizer,
		limits:    opts.Limits,
		pricing:   opts.Pricing,
		logger:    opts.Logger,
	}
}

// Question resolves one natural-language question against a trip. Terminal
// on the first applicable branch: cache hit, deterministic answer, guard
// failure or model answer.
func (r *Resolver) Question(ctx context.Context, t trip.Trip, question string) (Answer, error) {
	start := time.Now()

	if err := ValidateQuestion(question, r.limits.MaxQuestionLen); err != nil {
		return Answer{}, err
	}

	// Cache hit: zero additional token cost.
	if entry, hit := r.cacheLookup(t.ID, question); hit {
		answer := Answer{
			Answer:     entry.Answer,
			TokensUsed: entry.TokensUsed,
			LatencyMS:  time.Since(start).Milliseconds(),
			Cached:     true,
		}
		r.recordUsage(t.ID, question, answer)
		return answer, nil
	}

	// Deterministic short-circuit: exact computation beats the model.
	if fn, ok := deterministic.Classify(question); ok {
		text := deterministic.ExecuteFunction(fn, t.Events, t.StartDate, t.EndDate)
		answer := Answer{
			Answer:        text,
			LatencyMS:     time.Since(start).Milliseconds(),
			Deterministic: true,
		}
		r.cacheWrite(t.ID, question, text, 0)
		r.recordUsage(t.ID, question, answer)
		return answer, nil
	}

	aiCtx := aicontext.NewContext(t.Name, t.StartDate, t.EndDate, t.Events)
	estimated := r.tokenizer.CountJSON(aiCtx)
	if estimated > r.limits.QueryTokenCeiling {
		return Answer{}, &ContextTooLargeError{EstimatedTokens: estimated, Ceiling: r.limits.QueryTokenCeiling}
	}

	contextJSON, err := json.Marshal(aiCtx)
	if err != nil {
		return Answer{}, fmt.Errorf("marshal trip context: %w", err)
	}

	resp, err := r.provider.Chat(ctx, provider.ChatRequest{
		Messages: []chat.Message{
			chat.System(systemPrompt),
			chat.System("Trip context:\n" + string(contextJSON)),
			chat.User(question),
		},
		Temperature: queryTemperature,
	}, nil)
	if err != nil {
		return Answer{}, &UpstreamCallError{Err: err}
	}
	if resp.Content == "" {
		return Answer{}, &UpstreamCallError{Err: fmt.Errorf("assistant returned an empty answer")}
	}

	text := SanitizeAnswer(resp.Content, r.limits.AnswerMaxLen)
	answer := Answer{
		Answer:           text,
		TokensUsed:       resp.Usage.TotalTokens,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		EstimatedCostUSD: Cost(r.pricing, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		LatencyMS:        time.Since(start).Milliseconds(),
	}
	r.cacheWrite(t.ID, question, text, answer.TokensUsed)
	r.recordUsage(t.ID, question, answer)
	return answer, nil
}

// Cost converts reported token counts into dollars using per-million pricing.
func Cost(pricing config.PricingConfig, promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1e6*pricing.PromptPerMillionUSD +
		float64(completionTokens)/1e6*pricing.CompletionPerMillionUSD
}

func (r *Resolver) cacheLookup(tripID, question string) (*storage.CacheEntry, bool) {
	if r.cache == nil {
		return nil, false
	}
	entry, hit, err := r.cache.GetAnswer(tripID, question)
	if err != nil {
		r.logger.Warn("cache read failed", "error", err, "tripId", tripID)
		return nil, false
	}
	return entry, hit
}

// cacheWrite and recordUsage are fire-and-forget side channels: failures are
// logged and never propagated to the request.
func (r *Resolver) cacheWrite(tripID, question, answer string, tokensUsed int) {
	if r.cache == nil {
		return
	}
	if err := r.cache.PutAnswer(tripID, question, answer, tokensUsed); err != nil {
		r.logger.Warn("cache write failed", "error", err, "tripId", tripID)
	}
}

func (r *Resolver) recordUsage(tripID, question string, answer Answer) {
	if r.usage == nil {
		return
	}
	err := r.usage.LogUsage(storage.UsageEntry{
		TripID:           tripID,
		Question:         question,
		TokensUsed:       answer.TokensUsed,
		PromptTokens:     answer.PromptTokens,
		CompletionTokens: answer.CompletionTokens,
		CostUSD:          answer.EstimatedCostUSD,
		LatencyMS:        answer.LatencyMS,
		Deterministic:    answer.Deterministic,
		Cached:           answer.Cached,
	})
	if err != nil {
		r.logger.Warn("usage telemetry failed", "error", err, "tripId", tripID)
	}
}
