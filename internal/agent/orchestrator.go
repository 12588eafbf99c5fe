package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tripagent/internal/aicontext"
	"tripagent/internal/chat"
	"tripagent/internal/config"
	"tripagent/internal/deterministic"
	"tripagent/internal/provider"
	"tripagent/internal/query"
	"tripagent/internal/storage"
	"tripagent/internal/trip"
)

const agentSystemPrompt = "You are a travel itinerary assistant that can propose changes to the " +
	"user's trip. Use the provided tools to propose creating, editing or deleting events; every " +
	"proposal is reviewed by the user before anything is saved, so never claim a change has been " +
	"applied. Answer questions from the trip context only. All timestamps are ISO-8601."

const agentTemperature = 0.1

// TurnResult is the outcome of one agent conversation turn. Token and cost
// figures cover both model calls when tools were used.
type TurnResult struct {
	Reply            string        `json:"reply"`
	Actions          []AgentAction `json:"actions"`
	TokensUsed       int           `json:"tokensUsed"`
	PromptTokens     int           `json:"promptTokens"`
	CompletionTokens int           `json:"completionTokens"`
	EstimatedCostUSD float64       `json:"estimatedCostUsd"`
	LatencyMS        int64         `json:"latencyMs"`
	Deterministic    bool          `json:"deterministic,omitempty"`
}

// Orchestrator runs mutation-capable conversations. It extends the query
// pipeline with tool calling; tool calls become proposed AgentActions and a
// follow-up model call summarizes them for the user.
type Orchestrator struct {
	provider  provider.Provider
	actions   storage.ActionStore
	usage     storage.UsageStore
	tokenizer *aicontext.Tokenizer
	limits    config.LimitsConfig
	pricing   config.PricingConfig
	logger    *slog.Logger
}

// OrchestratorOptions mirrors query.Options. Actions may be nil, in which
// case proposals live only in the returned TurnResult.
type OrchestratorOptions struct {
	Actions   storage.ActionStore
	Usage     storage.UsageStore
	Tokenizer *aicontext.Tokenizer
	Limits    config.LimitsConfig
	Pricing   config.PricingConfig
	Logger    *slog.Logger
}

func NewOrchestrator(p provider.Provider, opts OrchestratorOptions) *Orchestrator {
	if opts.Tokenizer == nil {
		opts.Tokenizer = aicontext.DefaultTokenizer()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	def := config.Default()
	if opts.Limits.AgentTokenCeiling <= 0 {
		opts.Limits.AgentTokenCeiling = def.Limits.AgentTokenCeiling
	}
	if opts.Limits.AnswerMaxLen <= 0 {
		opts.Limits.AnswerMaxLen = def.Limits.AnswerMaxLen
	}
	if opts.Pricing.PromptPerMillionUSD <= 0 {
		opts.Pricing = def.Pricing
	}
	return &Orchestrator{
		provider:  p,
		actions:   opts.Actions,
		usage:     opts.Usage,
		tokenizer: opts.Tokenizer,
		limits:    opts.Limits,
		pricing:   opts.Pricing,
		logger:    opts.Logger,
	}
}

// Chat runs one conversation turn. messages is the accumulated conversation,
// user and assistant roles only; system and context messages are prepended
// here on every turn.
func (o *Orchestrator) Chat(ctx context.Context, t trip.Trip, messages []chat.Message) (TurnResult, error) {
	start := time.Now()

	// Deterministic questions bypass the model entirely, tools included.
	if question, ok := latestUserMessage(messages); ok {
		if fn, matched := deterministic.Classify(question); matched {
			return TurnResult{
				Reply:         deterministic.ExecuteFunction(fn, t.Events, t.StartDate, t.EndDate),
				Actions:       []AgentAction{},
				LatencyMS:     time.Since(start).Milliseconds(),
				Deterministic: true,
			}, nil
		}
	}

	aiCtx := aicontext.NewContext(t.Name, t.StartDate, t.EndDate, t.Events)
	estimated := o.tokenizer.CountJSON(aiCtx)
	for _, m := range messages {
		estimated += o.tokenizer.CountText(m.Content)
	}
	// Stricter ceiling than the query path: conversation history accumulates.
	if estimated > o.limits.AgentTokenCeiling {
		return TurnResult{}, &query.ContextTooLargeError{EstimatedTokens: estimated, Ceiling: o.limits.AgentTokenCeiling}
	}

	contextJSON, err := json.Marshal(aiCtx)
	if err != nil {
		return TurnResult{}, fmt.Errorf("marshal trip context: %w", err)
	}

	conversation := make([]chat.Message, 0, len(messages)+2)
	conversation = append(conversation,
		chat.System(agentSystemPrompt),
		chat.System("Trip context:\n"+string(contextJSON)))
	conversation = append(conversation, messages...)

	first, err := o.provider.Chat(ctx, provider.ChatRequest{
		Messages:    conversation,
		Tools:       toolDefs(),
		Temperature: agentTemperature,
	}, nil)
	if err != nil {
		return TurnResult{}, &query.UpstreamCallError{Err: err}
	}

	usage := first.Usage
	reply := first.Content
	actions := []AgentAction{}

	if len(first.ToolCalls) > 0 {
		conversation = append(conversation, chat.Message{
			Role:      "assistant",
			Content:   first.Content,
			ToolCalls: first.ToolCalls,
		})
		for _, call := range first.ToolCalls {
			action, buildErr := o.buildAction(t, call)
			if buildErr != nil {
				o.logger.Warn("tool call rejected", "tool", call.Function.Name, "error", buildErr)
				conversation = append(conversation, chat.ToolResult(call, "Proposal failed: "+buildErr.Error()))
				continue
			}
			o.saveAction(action)
			actions = append(actions, action)
			conversation = append(conversation, chat.ToolResult(call, acknowledgement(action)))
		}

		// Second pass: the model narrates what was proposed, now that every
		// call has a synthetic acknowledgement.
		second, err := o.provider.Chat(ctx, provider.ChatRequest{
			Messages:    conversation,
			Temperature: agentTemperature,
		}, nil)
		if err != nil {
			return TurnResult{}, &query.UpstreamCallError{Err: err}
		}
		reply = second.Content
		usage.PromptTokens += second.Usage.PromptTokens
		usage.CompletionTokens += second.Usage.CompletionTokens
		usage.TotalTokens += second.Usage.TotalTokens
	}

	if reply == "" {
		return TurnResult{}, &query.UpstreamCallError{Err: fmt.Errorf("assistant returned an empty reply")}
	}

	result := TurnResult{
		Reply:            query.SanitizeAnswer(reply, o.limits.AnswerMaxLen),
		Actions:          actions,
		TokensUsed:       usage.TotalTokens,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		EstimatedCostUSD: query.Cost(o.pricing, usage.PromptTokens, usage.CompletionTokens),
		LatencyMS:        time.Since(start).Milliseconds(),
	}
	o.recordUsage(t.ID, result)
	return result, nil
}

// buildAction converts one tool call into a proposed action. Creates and
// edits run through the normalizer so the proposal already carries the
// canonical shape the store expects.
func (o *Orchestrator) buildAction(t trip.Trip, call chat.ToolCall) (AgentAction, error) {
	var args map[string]any
	if err := query.UnmarshalObject(call.Function.Arguments, &args); err != nil {
		return AgentAction{}, fmt.Errorf("arguments for %s: %w", call.Function.Name, err)
	}

	action := AgentAction{
		ID:     uuid.NewString(),
		TripID: t.ID,
		Type:   call.Function.Name,
		Status: storage.ActionProposed,
	}

	switch call.Function.Name {
	case ToolCreateEvent:
		delete(args, "id")
		action.Event = trip.Normalize(args).ToMap()

	case ToolEditEvent:
		id, _ := args["id"].(string)
		if id == "" {
			return AgentAction{}, fmt.Errorf("edit_event missing id")
		}
		existing, ok := findEvent(t.Events, id)
		if !ok {
			return AgentAction{}, fmt.Errorf("event %s not found", id)
		}
		merged := existing.ToMap()
		for k, v := range args {
			merged[k] = v
		}
		// Derived fields are recomputed from the merged payload.
		delete(merged, "start")
		delete(merged, "end")
		action.Event = trip.Normalize(merged).ToMap()

	case ToolDeleteEvent:
		id, _ := args["id"].(string)
		if id == "" {
			return AgentAction{}, fmt.Errorf("delete_event missing id")
		}
		title, _ := args["title"].(string)
		if title == "" {
			if existing, ok := findEvent(t.Events, id); ok {
				title = existing.Title
			}
		}
		action.Event = map[string]any{"id": id, "title": title}
		action.Reason, _ = args["reason"].(string)

	default:
		return AgentAction{}, fmt.Errorf("unknown tool %q", call.Function.Name)
	}
	return action, nil
}

func (o *Orchestrator) saveAction(action AgentAction) {
	if o.actions == nil {
		return
	}
	if err := o.actions.SaveAction(toRecord(action)); err != nil {
		o.logger.Warn("action persistence failed", "actionId", action.ID, "error", err)
	}
}

func (o *Orchestrator) recordUsage(tripID string, result TurnResult) {
	if o.usage == nil {
		return
	}
	err := o.usage.LogUsage(storage.UsageEntry{
		TripID:           tripID,
		Question:         "agent turn",
		TokensUsed:       result.TokensUsed,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		CostUSD:          result.EstimatedCostUSD,
		LatencyMS:        result.LatencyMS,
		Deterministic:    result.Deterministic,
	})
	if err != nil {
		o.logger.Warn("usage telemetry failed", "error", err, "tripId", tripID)
	}
}

func acknowledgement(action AgentAction) string {
	title, _ := action.Event["title"].(string)
	switch action.Type {
	case ToolCreateEvent:
		return fmt.Sprintf("Proposed creating event %q. Awaiting user confirmation.", title)
	case ToolEditEvent:
		return fmt.Sprintf("Proposed editing event %q. Awaiting user confirmation.", title)
	case ToolDeleteEvent:
		return fmt.Sprintf("Proposed deleting event %q. Awaiting user confirmation.", title)
	}
	return "Proposal recorded. Awaiting user confirmation."
}

func latestUserMessage(messages []chat.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, true
		}
	}
	return "", false
}

func findEvent(events []trip.Event, id string) (trip.Event, bool) {
	for _, e := range events {
		if e.ID == id {
			return e, true
		}
	}
	return trip.Event{}, false
}
