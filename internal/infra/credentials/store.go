// Package credentials keeps provider API keys in Postgres so deployments can
// rotate them without touching the environment.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"creativeflow/internal/infra"
	"creativeflow/internal/sqlinline"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderFal    = "fal"
)

// Supported lists the providers a key may be stored for.
var Supported = []string{ProviderOpenAI, ProviderGemini, ProviderFal}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QCreateProviderCredentialsTable); err != nil {
		return fmt.Errorf("credentials: ensure schema: %w", err)
	}
	return nil
}

// Keys returns every stored non-empty key by provider.
func (s *Store) Keys(ctx context.Context) (map[string]string, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QSelectProviderCredentials)
	if err != nil {
		return nil, fmt.Errorf("credentials: list: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var provider, token string
		if err := rows.Scan(&provider, &token); err != nil {
			return nil, fmt.Errorf("credentials: scan: %w", err)
		}
		if token = strings.TrimSpace(token); token != "" {
			out[provider] = token
		}
	}
	return out, rows.Err()
}

// Set stores key for provider, replacing any previous one.
func (s *Store) Set(ctx context.Context, provider, key string, props map[string]any) error {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("credentials: %s api key is required", provider)
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertProviderCredential, provider, key, raw)
	return err
}

func (s *Store) Delete(ctx context.Context, provider string) error {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QDeleteProviderCredential, provider)
	return err
}

func normalizeProvider(provider string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(provider))
	for _, known := range Supported {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("credentials: unsupported provider %q", provider)
}
