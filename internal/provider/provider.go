package provider

import (
	"context"

	"tripagent/internal/chat"
)

// ChatRequest wraps a single model call.
type ChatRequest struct {
	Model       string
	Messages    []chat.Message
	Tools       []chat.ToolDef
	Temperature float32
	MaxTokens   int
}

// StreamCallbacks is the callback set for streaming responses. OnTextChunk
// receives assistant text as it arrives; it may be nil.
type StreamCallbacks struct {
	OnTextChunk func(chunk string)
}

// Usage reports token consumption as counted by the upstream service.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the complete response after the stream drains.
type ChatResponse struct {
	Content      string
	ToolCalls    []chat.ToolCall
	FinishReason string
	Usage        Usage
}

// Provider is the model backend interface. The engine never talks to an LLM
// except through this, so tests substitute fakes.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest, cb *StreamCallbacks) (ChatResponse, error)
	CurrentModel() string
}
