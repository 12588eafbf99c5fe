package agent

import "tripagent/internal/chat"

// Tool names the model can call. Each call becomes a reviewable proposal,
// never a direct mutation.
const (
	ToolCreateEvent = "create_event"
	ToolEditEvent   = "edit_event"
	ToolDeleteEvent = "delete_event"
)

func legSchema(desc string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": desc,
		"properties": map[string]any{
			"date": map[string]any{"type": "string", "description": "ISO-8601 date or timestamp"},
			"location": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    map[string]any{"type": "string"},
					"city":    map[string]any{"type": "string"},
					"country": map[string]any{"type": "string"},
				},
			},
		},
	}
}

// eventProperties is the shared argument shape for create and edit calls. It
// mirrors the canonical event union: the category selects which of the
// payload groups is meaningful.
func eventProperties() map[string]any {
	return map[string]any{
		"category": map[string]any{
			"type": "string",
			"enum": []string{"travel", "accommodation", "experience", "meal"},
		},
		"type":  map[string]any{"type": "string", "description": "Subtype, e.g. flight, train, hotel, tour, dinner"},
		"title": map[string]any{"type": "string"},
		"location": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":    map[string]any{"type": "string"},
				"city":    map[string]any{"type": "string"},
				"country": map[string]any{"type": "string"},
			},
		},
		"notes":       map[string]any{"type": "string"},
		"departure":   legSchema("Travel only: departure date and place"),
		"arrival":     legSchema("Travel only: arrival date and place"),
		"carrier":     map[string]any{"type": "string"},
		"routeNumber": map[string]any{"type": "string"},
		"checkIn":     legSchema("Accommodation only: check-in date and place"),
		"checkOut":    legSchema("Accommodation only: check-out date and place"),
		"placeName":   map[string]any{"type": "string", "description": "Accommodation only: property name"},
		"startDate":   map[string]any{"type": "string", "description": "Experience only: ISO-8601 start"},
		"endDate":     map[string]any{"type": "string", "description": "Experience only: ISO-8601 end"},
		"date":        map[string]any{"type": "string", "description": "Meal only: ISO-8601 date"},
	}
}

func toolDefs() []chat.ToolDef {
	createProps := eventProperties()

	editProps := eventProperties()
	editProps["id"] = map[string]any{"type": "string", "description": "Id of the event to change"}

	return []chat.ToolDef{
		{
			Type: "function",
			Function: chat.ToolFunction{
				Name:        ToolCreateEvent,
				Description: "Propose adding a new event to the itinerary. The user reviews and confirms before anything is saved.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": createProps,
					"required":   []string{"category", "title"},
				},
			},
		},
		{
			Type: "function",
			Function: chat.ToolFunction{
				Name:        ToolEditEvent,
				Description: "Propose changing an existing event. Supply the event id and only the fields to change.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": editProps,
					"required":   []string{"id"},
				},
			},
		},
		{
			Type: "function",
			Function: chat.ToolFunction{
				Name:        ToolDeleteEvent,
				Description: "Propose removing an event from the itinerary.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":     map[string]any{"type": "string", "description": "Id of the event to remove"},
						"title":  map[string]any{"type": "string"},
						"reason": map[string]any{"type": "string", "description": "Short human-readable reason"},
					},
					"required": []string{"id"},
				},
			},
		},
	}
}
