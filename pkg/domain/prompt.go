package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	DefaultSystemMessage = "You are a helpful assistant."
	JSONInstruction      = " Please respond in valid JSON format."
)

var ErrInvalidJSON = errors.New("The model didn't return valid JSON")

// ResolveSystemMessage applies the default system message and, when JSON
// output is requested, makes sure the message mentions JSON.
func ResolveSystemMessage(systemMessage string, wantJSON bool) string {
	msg := systemMessage
	if msg == "" {
		msg = DefaultSystemMessage
	}
	if wantJSON && !strings.Contains(strings.ToLower(msg), "json") {
		msg += JSONInstruction
	}
	return msg
}

// ParseJSONBody validates a model reply as JSON and returns the JSON text.
// A reply wrapped in a markdown code fence is unwrapped first. An empty
// reply is treated as an empty object.
func ParseJSONBody(text string) (json.RawMessage, error) {
	body := strings.TrimSpace(stripCodeFence(text))
	if body == "" {
		body = "{}"
	}
	if !json.Valid([]byte(body)) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(body), nil
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return text
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(trimmed, "```"), "```")
	// drop the language tag on the opening fence line
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		tag := strings.TrimSpace(inner[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{[\"") {
			inner = inner[nl+1:]
		}
	}
	return inner
}
