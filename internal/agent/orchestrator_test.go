package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tripagent/internal/chat"
	"tripagent/internal/config"
	"tripagent/internal/provider"
	"tripagent/internal/query"
	"tripagent/internal/storage"
	"tripagent/internal/trip"
)

// scriptedProvider returns canned responses in order, one per Chat call.
type scriptedProvider struct {
	responses []provider.ChatResponse
	requests  []provider.ChatRequest
}

func (s *scriptedProvider) Chat(_ context.Context, req provider.ChatRequest, _ *provider.StreamCallbacks) (provider.ChatResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return provider.ChatResponse{}, errors.New("no scripted response left")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedProvider) CurrentModel() string { return "fake-model" }

func agentTrip() trip.Trip {
	return trip.Trip{
		ID:        "trip1",
		Name:      "Europe 2024",
		StartDate: "2024-06-01",
		EndDate:   "2024-06-10",
		Events: []trip.Event{
			trip.Normalize(map[string]any{
				"id":       "evt-1",
				"category": "meal",
				"type":     "dinner",
				"title":    "Dinner at Le Procope",
				"date":     "2024-06-02T19:00:00Z",
				"location": map[string]any{"name": "Le Procope", "city": "Paris", "country": "France"},
			}),
		},
	}
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func toolCall(id, name, args string) chat.ToolCall {
	return chat.ToolCall{
		ID:       id,
		Type:     "function",
		Function: chat.ToolCallFunction{Name: name, Arguments: args},
	}
}

func TestChat_DeterministicSkipsModel(t *testing.T) {
	fake := &scriptedProvider{}
	o := NewOrchestrator(fake, OrchestratorOptions{})

	res, err := o.Chat(context.Background(), agentTrip(), []chat.Message{
		chat.User("How long is my trip?"),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !res.Deterministic || len(fake.requests) != 0 {
		t.Fatalf("expected deterministic short-circuit: %+v, calls=%d", res, len(fake.requests))
	}
	if len(res.Actions) != 0 {
		t.Fatalf("deterministic turn must not propose actions: %+v", res.Actions)
	}
}

func TestChat_PlainReplyWithoutTools(t *testing.T) {
	fake := &scriptedProvider{responses: []provider.ChatResponse{
		{Content: "Paris is lovely in June.", Usage: provider.Usage{PromptTokens: 200, CompletionTokens: 20, TotalTokens: 220}},
	}}
	o := NewOrchestrator(fake, OrchestratorOptions{})

	res, err := o.Chat(context.Background(), agentTrip(), []chat.Message{
		chat.User("Tell me about the weather in Paris."),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.Reply != "Paris is lovely in June." || len(res.Actions) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.TokensUsed != 220 {
		t.Fatalf("tokens = %d", res.TokensUsed)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("expected one model call, got %d", len(fake.requests))
	}
	if len(fake.requests[0].Tools) != 3 {
		t.Fatalf("tools not offered: %d", len(fake.requests[0].Tools))
	}
}

func TestChat_CreateProposal(t *testing.T) {
	store := newTestStore(t)
	fake := &scriptedProvider{responses: []provider.ChatResponse{
		{
			ToolCalls: []chat.ToolCall{toolCall("call_0", ToolCreateEvent, `{
				"category": "experience",
				"type": "tour",
				"title": "Louvre visit",
				"startDate": "2024-06-03T10:00:00Z",
				"endDate": "2024-06-03T13:00:00Z",
				"location": {"name": "Louvre", "city": "Paris", "country": "France"}
			}`)},
			Usage: provider.Usage{PromptTokens: 300, CompletionTokens: 40, TotalTokens: 340},
		},
		{
			Content: "I proposed adding a Louvre visit on June 3rd.",
			Usage:   provider.Usage{PromptTokens: 350, CompletionTokens: 15, TotalTokens: 365},
		},
	}}
	o := NewOrchestrator(fake, OrchestratorOptions{Actions: store})

	res, err := o.Chat(context.Background(), agentTrip(), []chat.Message{
		chat.User("Add a Louvre visit on June 3rd."),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(res.Actions) != 1 {
		t.Fatalf("actions = %+v", res.Actions)
	}
	action := res.Actions[0]
	if action.Type != ToolCreateEvent || action.Status != storage.ActionProposed {
		t.Fatalf("action = %+v", action)
	}
	if action.Event["title"] != "Louvre visit" || action.Event["start"] != "2024-06-03T10:00:00Z" {
		t.Fatalf("event not normalized: %+v", action.Event)
	}
	if id, _ := action.Event["id"].(string); id == "" {
		t.Fatal("created event needs a placeholder id")
	}

	// Both calls' usage is summed.
	if res.TokensUsed != 705 || res.PromptTokens != 650 || res.CompletionTokens != 55 {
		t.Fatalf("usage not summed: %+v", res)
	}
	if res.Reply != "I proposed adding a Louvre visit on June 3rd." {
		t.Fatalf("reply = %q", res.Reply)
	}

	// Second request carries the synthetic tool acknowledgement.
	second := fake.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "call_0" {
		t.Fatalf("missing tool acknowledgement: %+v", last)
	}

	// Proposal is persisted and confirmable.
	confirmed, err := NewActions(store).Confirm(action.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != storage.ActionConfirmed {
		t.Fatalf("status = %q", confirmed.Status)
	}
}

func TestChat_EditMergesOverExisting(t *testing.T) {
	fake := &scriptedProvider{responses: []provider.ChatResponse{
		{ToolCalls: []chat.ToolCall{toolCall("call_0", ToolEditEvent,
			`{"id": "evt-1", "date": "2024-06-03T20:00:00Z"}`)}},
		{Content: "Moved the dinner to June 3rd at 8pm."},
	}}
	o := NewOrchestrator(fake, OrchestratorOptions{})

	res, err := o.Chat(context.Background(), agentTrip(), []chat.Message{
		chat.User("Move the dinner to the next evening."),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(res.Actions) != 1 {
		t.Fatalf("actions = %+v", res.Actions)
	}
	event := res.Actions[0].Event
	if event["id"] != "evt-1" {
		t.Fatalf("id changed: %v", event["id"])
	}
	if event["title"] != "Dinner at Le Procope" {
		t.Fatalf("untouched field lost: %v", event["title"])
	}
	if event["start"] != "2024-06-03T20:00:00Z" {
		t.Fatalf("window not recomputed: %v", event["start"])
	}
}

func TestChat_EditUnknownEventIsSkipped(t *testing.T) {
	fake := &scriptedProvider{responses: []provider.ChatResponse{
		{ToolCalls: []chat.ToolCall{toolCall("call_0", ToolEditEvent, `{"id": "nope"}`)}},
		{Content: "I could not find that event."},
	}}
	o := NewOrchestrator(fake, OrchestratorOptions{})

	res, err := o.Chat(context.Background(), agentTrip(), []chat.Message{
		chat.User("Change that event."),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(res.Actions) != 0 {
		t.Fatalf("bad tool call must not produce an action: %+v", res.Actions)
	}
	// The failure still gets a tool message so the summary call is well formed.
	second := fake.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" {
		t.Fatalf("expected tool message, got %+v", last)
	}
}

func TestChat_DeleteProposal(t *testing.T) {
	fake := &scriptedProvider{responses: []provider.ChatResponse{
		{ToolCalls: []chat.ToolCall{toolCall("call_0", ToolDeleteEvent,
			`{"id": "evt-1", "reason": "User cancelled the reservation"}`)}},
		{Content: "I proposed removing the dinner."},
	}}
	o := NewOrchestrator(fake, OrchestratorOptions{})

	res, err := o.Chat(context.Background(), agentTrip(), []chat.Message{
		chat.User("Cancel the dinner."),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	action := res.Actions[0]
	if action.Type != ToolDeleteEvent || action.Reason != "User cancelled the reservation" {
		t.Fatalf("action = %+v", action)
	}
	// Title is backfilled from the located event.
	if action.Event["title"] != "Dinner at Le Procope" {
		t.Fatalf("event = %+v", action.Event)
	}
}

func TestChat_ContextGuard(t *testing.T) {
	fake := &scriptedProvider{}
	o := NewOrchestrator(fake, OrchestratorOptions{
		Limits: config.LimitsConfig{AgentTokenCeiling: 5},
	})

	_, err := o.Chat(context.Background(), agentTrip(), []chat.Message{
		chat.User("Plan out every day of the trip in detail."),
	})
	var tooLarge *query.ContextTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected ContextTooLargeError, got %v", err)
	}
	if len(fake.requests) != 0 {
		t.Fatal("guard failure must not reach the provider")
	}
}

func TestActions_RejectAfterConfirmFails(t *testing.T) {
	store := newTestStore(t)
	actions := NewActions(store)

	rec := toRecord(AgentAction{
		ID:     "act-1",
		TripID: "trip1",
		Type:   ToolDeleteEvent,
		Event:  map[string]any{"id": "evt-1", "title": "Dinner"},
		Status: storage.ActionProposed,
	})
	if err := store.SaveAction(rec); err != nil {
		t.Fatalf("SaveAction: %v", err)
	}

	if _, err := actions.Reject("act-1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := actions.Confirm("act-1"); err == nil {
		t.Fatal("rejected action must not be confirmable")
	}

	list, err := actions.List("trip1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Status != storage.ActionRejected {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Event["title"] != "Dinner" {
		t.Fatalf("event payload lost: %+v", list[0].Event)
	}
}
