package agent

import (
	"encoding/json"
	"fmt"

	"tripagent/internal/storage"
)

// AgentAction is a reviewable mutation proposal produced from a model tool
// call. Event holds a full event payload for creates and edits, and just the
// target id/title for deletes.
type AgentAction struct {
	ID     string         `json:"id"`
	TripID string         `json:"tripId"`
	Type   string         `json:"type"`
	Event  map[string]any `json:"event"`
	Reason string         `json:"reason,omitempty"`
	Status string         `json:"status"`
}

// Actions owns the confirm/reject side of the proposal lifecycle. The
// orchestrator only ever writes proposals; transitions happen here, on
// explicit caller request.
type Actions struct {
	store storage.ActionStore
}

func NewActions(store storage.ActionStore) *Actions {
	return &Actions{store: store}
}

// Confirm moves a proposed action to confirmed. Fails if the action does not
// exist or has already left the proposed state.
func (a *Actions) Confirm(id string) (AgentAction, error) {
	return a.transition(id, storage.ActionConfirmed)
}

// Reject moves a proposed action to rejected.
func (a *Actions) Reject(id string) (AgentAction, error) {
	return a.transition(id, storage.ActionRejected)
}

func (a *Actions) transition(id, status string) (AgentAction, error) {
	if err := a.store.UpdateActionStatus(id, status); err != nil {
		return AgentAction{}, fmt.Errorf("update action %s: %w", id, err)
	}
	rec, err := a.store.GetAction(id)
	if err != nil {
		return AgentAction{}, fmt.Errorf("reload action %s: %w", id, err)
	}
	return fromRecord(rec), nil
}

// List returns every persisted action for a trip, proposals included.
func (a *Actions) List(tripID string) ([]AgentAction, error) {
	recs, err := a.store.ListActions(tripID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	out := make([]AgentAction, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

func toRecord(action AgentAction) storage.ActionRecord {
	data, err := json.Marshal(action.Event)
	if err != nil {
		data = []byte("{}")
	}
	return storage.ActionRecord{
		ID:        action.ID,
		TripID:    action.TripID,
		Type:      action.Type,
		EventJSON: string(data),
		Reason:    action.Reason,
		Status:    action.Status,
	}
}

func fromRecord(rec storage.ActionRecord) AgentAction {
	event := map[string]any{}
	if rec.EventJSON != "" {
		// A corrupt payload still yields a listable action; the event is
		// simply empty.
		_ = json.Unmarshal([]byte(rec.EventJSON), &event)
	}
	return AgentAction{
		ID:     rec.ID,
		TripID: rec.TripID,
		Type:   rec.Type,
		Event:  event,
		Reason: rec.Reason,
		Status: rec.Status,
	}
}
