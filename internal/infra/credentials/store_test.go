package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	rows  [][2]string
	err   error
	query string
	args  []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.query = query
	s.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return nil
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &tokenRows{rows: s.rows, idx: -1}, nil
}

type tokenRows struct {
	rows [][2]string
	idx  int
}

func (r *tokenRows) Close() {}
func (r *tokenRows) Err() error { return nil }
func (r *tokenRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *tokenRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *tokenRows) Values() ([]any, error) { return nil, nil }
func (r *tokenRows) RawValues() [][]byte { return nil }
func (r *tokenRows) Conn() *pgx.Conn { return nil }

func (r *tokenRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *tokenRows) Scan(dest ...any) error {
	if len(dest) != 2 {
		return errors.New("expected two destinations")
	}
	*dest[0].(*string) = r.rows[r.idx][0]
	*dest[1].(*string) = r.rows[r.idx][1]
	return nil
}

func TestKeysSkipsBlankTokens(t *testing.T) {
	store := NewStore(&stubExecutor{rows: [][2]string{{"gemini", " g-key "}, {"openai", "  "}}})
	keys, err := store.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys error: %v", err)
	}
	if len(keys) != 1 || keys[ProviderGemini] != "g-key" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestKeysPropagatesQueryError(t *testing.T) {
	store := NewStore(&stubExecutor{err: errors.New("relation missing")})
	if _, err := store.Keys(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSetNormalizesProvider(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.Set(context.Background(), " FAL ", "secret", nil); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if len(exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.args))
	}
	if v, _ := exec.args[0].(string); v != ProviderFal {
		t.Fatalf("expected provider fal, got %v", exec.args[0])
	}
	if v, _ := exec.args[1].(string); v != "secret" {
		t.Fatalf("expected secret argument, got %v", exec.args[1])
	}
	if raw, _ := exec.args[2].([]byte); string(raw) != "{}" {
		t.Fatalf("expected empty properties, got %s", raw)
	}
}

func TestSetRejectsBadInput(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.Set(context.Background(), ProviderOpenAI, " ", nil); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := store.Set(context.Background(), "qwen", "k", nil); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if err := store.Delete(context.Background(), "qwen"); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
