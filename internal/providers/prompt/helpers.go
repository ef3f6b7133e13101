package prompt

import (
	"fmt"
	"io"
	"strings"

	"creativeflow/internal/domain"
)

const (
	staticProviderName = "static"
	geminiProviderName = "gemini"
	openAIProviderName = "openai"
)

const errorBodyLimit = 512

// statusError reads a bounded slice of a failed response body for diagnostics.
func statusError(provider string, status int, body io.Reader) error {
	snippet, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
	detail := strings.TrimSpace(string(snippet))
	if detail == "" {
		return fmt.Errorf("%w: %s status %d", domain.ErrProviderFailure, provider, status)
	}
	return fmt.Errorf("%w: %s status %d: %s", domain.ErrProviderFailure, provider, status, detail)
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
