package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	markdownImagePattern = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	scriptTagPattern     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	strayScriptPattern   = regexp.MustCompile(`(?i)</?script[^>]*>`)
)

// Phrases that mark a question as a prompt-injection attempt. Checked
// case-insensitively against the raw question.
var injectionPhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard previous instructions",
	"forget everything",
	"system:",
	"you are now",
	"new instructions:",
}

// ValidateQuestion enforces the pre-flight question rules: non-empty, within
// the length limit, no injection phrasing. Returns a *ValidationError on the
// first violated rule; no side effects happen before this passes.
func ValidateQuestion(question string, maxLen int) error {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return &ValidationError{Reason: "question is empty"}
	}
	if len(question) > maxLen {
		return &ValidationError{Reason: fmt.Sprintf("question exceeds %d characters", maxLen)}
	}
	lowered := strings.ToLower(question)
	for _, phrase := range injectionPhrases {
		if strings.Contains(lowered, phrase) {
			return &ValidationError{Reason: "question contains a disallowed instruction pattern"}
		}
	}
	return nil
}

// SanitizeAnswer strips markdown image syntax and script tags from model
// output and hard-truncates to maxLen runes. Structural cleanup only; the
// semantic content is the model's responsibility.
func SanitizeAnswer(answer string, maxLen int) string {
	out := markdownImagePattern.ReplaceAllString(answer, "")
	out = scriptTagPattern.ReplaceAllString(out, "")
	out = strayScriptPattern.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)

	runes := []rune(out)
	if maxLen > 0 && len(runes) > maxLen {
		out = string(runes[:maxLen])
	}
	return out
}

// UnmarshalObject parses a JSON object out of model output. When the text is
// not directly valid JSON (prose around it, truncated fences), one fallback
// attempt extracts the outermost {...} block; failing that too yields a
// *ParseError.
func UnmarshalObject(raw string, v any) error {
	trimmed := strings.TrimSpace(raw)
	firstErr := json.Unmarshal([]byte(trimmed), v)
	if firstErr == nil {
		return nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return &ParseError{Err: firstErr}
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err != nil {
		return &ParseError{Err: err}
	}
	return nil
}
