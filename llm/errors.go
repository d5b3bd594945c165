package llm

import (
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// contextLimitMarkers are substrings providers use to signal that the request
// exceeded the model's maximum input size.
var contextLimitMarkers = []string{
	"context_length_exceeded",
	"context length",
	"maximum context",
	"too many tokens",
	"input is too long",
}

// IsContextLimit reports whether err indicates the request exceeded the
// model's maximum context size.
func IsContextLimit(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range contextLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// EstimateTokens estimates a token count for the given messages when the
// provider does not report usage. Heuristic: one token per four bytes,
// counting inline attachment payloads as well as text.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
		for _, a := range m.Attachments {
			total += len(a.Data)
		}
	}
	return (total + 3) / 4
}

// EstimateTextTokens estimates a token count for a single text payload.
func EstimateTextTokens(text string) int {
	return (len(text) + 3) / 4
}
