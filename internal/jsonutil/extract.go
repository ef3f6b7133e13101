// Package jsonutil pulls JSON objects out of model responses that may be
// wrapped in markdown fences or surrounded by prose.
package jsonutil

import (
	"encoding/json"
	"strings"

	"creativeflow/internal/domain"
)

// TrimCodeFence removes a leading ```json, ```JSON or ``` fence and the
// trailing ``` if present.
func TrimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
	}
	return strings.TrimSpace(trimmed)
}

// Span returns the text from the first '{' to the last '}' inclusive.
func Span(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ExtractObject recovers a single JSON object from raw model text.
func ExtractObject(raw string) (domain.Object, error) {
	text := TrimCodeFence(raw)
	if text == "" {
		return nil, domain.NewMalformedOutputError("empty response", raw)
	}
	span, ok := Span(text)
	if !ok {
		return nil, domain.NewMalformedOutputError("no JSON object found", raw)
	}
	var decoded any
	if err := json.Unmarshal([]byte(span), &decoded); err != nil {
		return nil, domain.NewMalformedOutputError("invalid JSON: "+err.Error(), raw)
	}
	val, err := domain.FromAny(decoded)
	if err != nil {
		return nil, domain.NewMalformedOutputError(err.Error(), raw)
	}
	obj, isObj := val.Obj()
	if !isObj {
		return nil, domain.NewMalformedOutputError("JSON value is not an object", raw)
	}
	if obj == nil {
		obj = domain.Object{}
	}
	return obj, nil
}
