package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"tripagent/internal/chat"
)

// OpenAIProvider implements Provider using the go-openai SDK against any
// OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	cfg    OpenAIConfig
	mu     sync.RWMutex
}

// OpenAIConfig is the SDK provider configuration.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	TimeoutMS  int
	MaxRetries int
}

// NewOpenAIProvider creates an SDK-backed provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	clientCfg.HTTPClient = httpClient

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		cfg:    cfg,
	}
}

func (p *OpenAIProvider) CurrentModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

func (p *OpenAIProvider) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("model is empty")
	}
	p.mu.Lock()
	p.model = model
	p.mu.Unlock()
	return nil
}

// Chat sends a streaming completion request with exponential-backoff retries.
// Context cancellation is never retried.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest, cb *StreamCallbacks) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.CurrentModel()
	}

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(150*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return ChatResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := p.chatStream(ctx, model, req, cb)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ChatResponse{}, err
		}
		if attempt >= p.cfg.MaxRetries {
			break
		}
	}
	return ChatResponse{}, fmt.Errorf("chat failed after %d retries: %w", p.cfg.MaxRetries, lastErr)
}

func (p *OpenAIProvider) chatStream(ctx context.Context, model string, req ChatRequest, cb *StreamCallbacks) (ChatResponse, error) {
	sdkReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toSDKMessages(req.Messages),
		Temperature: req.Temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		sdkReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		sdkReq.Tools = toSDKTools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, sdkReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("create completion stream: %w", err)
	}
	defer stream.Close()

	var (
		content        strings.Builder
		toolCallsByIdx = map[int]*toolCallBuilder{}
		finishReason   string
		usage          Usage
	)

	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ChatResponse{}, fmt.Errorf("read completion stream: %w", err)
		}

		if event.Usage != nil {
			usage = Usage{
				PromptTokens:     event.Usage.PromptTokens,
				CompletionTokens: event.Usage.CompletionTokens,
				TotalTokens:      event.Usage.TotalTokens,
			}
		}
		for _, choice := range event.Choices {
			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				if cb != nil && cb.OnTextChunk != nil {
					cb.OnTextChunk(choice.Delta.Content)
				}
			}
			for _, delta := range choice.Delta.ToolCalls {
				appendToolCallDelta(toolCallsByIdx, delta)
			}
		}
	}

	return ChatResponse{
		Content:      content.String(),
		ToolCalls:    buildToolCalls(toolCallsByIdx),
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

// toolCallBuilder accumulates the fragments of one tool call. Streamed tool
// calls arrive as deltas keyed by index: the id and name land early, the
// arguments dribble in across many chunks.
type toolCallBuilder struct {
	ID        string
	Type      string
	Name      string
	Arguments strings.Builder
}

func appendToolCallDelta(target map[int]*toolCallBuilder, delta openai.ToolCall) {
	idx := 0
	if delta.Index != nil {
		idx = *delta.Index
	}
	current, ok := target[idx]
	if !ok {
		current = &toolCallBuilder{}
		target[idx] = current
	}
	if delta.ID != "" {
		current.ID = delta.ID
	}
	if delta.Type != "" {
		current.Type = string(delta.Type)
	}
	if delta.Function.Name != "" {
		current.Name += delta.Function.Name
	}
	if delta.Function.Arguments != "" {
		current.Arguments.WriteString(delta.Function.Arguments)
	}
}

func buildToolCalls(toolCallsByIdx map[int]*toolCallBuilder) []chat.ToolCall {
	if len(toolCallsByIdx) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(toolCallsByIdx))
	for idx := range toolCallsByIdx {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]chat.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		b := toolCallsByIdx[idx]
		if b == nil {
			continue
		}
		id := strings.TrimSpace(b.ID)
		if id == "" {
			id = "call_" + strconv.Itoa(idx)
		}
		kind := strings.TrimSpace(b.Type)
		if kind == "" {
			kind = "function"
		}
		calls = append(calls, chat.ToolCall{
			ID:   id,
			Type: kind,
			Function: chat.ToolCallFunction{
				Name:      strings.TrimSpace(b.Name),
				Arguments: b.Arguments.String(),
			},
		})
	}
	return calls
}

func toSDKMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		sdkMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			sdkMsg.ToolCalls = append(sdkMsg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolType(call.Type),
				Function: openai.FunctionCall{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		out = append(out, sdkMsg)
	}
	return out
}

func toSDKTools(tools []chat.ToolDef) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, def := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Function.Name,
				Description: def.Function.Description,
				Parameters:  def.Function.Parameters,
			},
		})
	}
	return out
}
