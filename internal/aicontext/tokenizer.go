package aicontext

import (
	"encoding/json"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens with tiktoken when the BPE tables are available and
// falls back to the ceil(chars/4) heuristic otherwise. The heuristic is also
// the documented lower bound for context-guard decisions, so either path is
// acceptable for the size ceilings.
type Tokenizer struct {
	encoder      *tiktoken.Tiktoken
	encodingName string
	fallback     bool
	mu           sync.RWMutex
}

var (
	defaultTokenizer     *Tokenizer
	defaultTokenizerOnce sync.Once
)

// DefaultTokenizer returns the shared cl100k_base tokenizer.
func DefaultTokenizer() *Tokenizer {
	defaultTokenizerOnce.Do(func() {
		defaultTokenizer = NewTokenizer("cl100k_base")
	})
	return defaultTokenizer
}

// NewTokenizer creates a tokenizer for the named encoding. Offline
// environments may lack the BPE cache; those fall back to the heuristic.
func NewTokenizer(encodingName string) *Tokenizer {
	t := &Tokenizer{encodingName: encodingName}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		t.fallback = true
		return t
	}
	t.encoder = enc
	return t
}

// NewTokenizerForModel picks the encoding that matches the configured model.
func NewTokenizerForModel(model string) *Tokenizer {
	return NewTokenizer(modelToEncoding(model))
}

// CountText returns the token count for a single string.
func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicCount(text)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// CountJSON estimates the token cost of a payload by counting its compact
// JSON encoding.
func (t *Tokenizer) CountJSON(payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return t.CountText(string(data))
}

// IsPrecise reports whether tiktoken-backed counting is active.
func (t *Tokenizer) IsPrecise() bool {
	return !t.fallback
}

// heuristicCount is ceil(len/4): roughly four characters per token for
// English-dominated itinerary text.
func heuristicCount(text string) int {
	n := len(text)
	return (n + 3) / 4
}

func modelToEncoding(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case m == "":
		return "cl100k_base"
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return "o200k_base"
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"), strings.HasPrefix(m, "gpt-5"):
		return "o200k_base"
	case strings.HasPrefix(m, "gpt-4"), strings.HasPrefix(m, "gpt-3.5"):
		return "cl100k_base"
	default:
		return "cl100k_base"
	}
}
