package query

import "fmt"

// ValidationError rejects a question before any cache or model work happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid question: " + e.Reason
}

// ContextTooLargeError signals the caller to narrow the question or scope
// instead of sending an oversized context upstream.
type ContextTooLargeError struct {
	EstimatedTokens int
	Ceiling         int
}

func (e *ContextTooLargeError) Error() string {
	return fmt.Sprintf("trip context too large for analysis: %d tokens (ceiling %d)", e.EstimatedTokens, e.Ceiling)
}

// UpstreamCallError wraps a failed, empty or malformed model call. The
// wrapped message stays generic; the cause carries the detail.
type UpstreamCallError struct {
	Err error
}

func (e *UpstreamCallError) Error() string {
	return "assistant request failed: " + e.Err.Error()
}

func (e *UpstreamCallError) Unwrap() error {
	return e.Err
}

// ParseError marks model output that was not valid JSON even after the
// outermost-object fallback.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse model output: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
