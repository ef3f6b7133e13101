package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"creativeflow/internal/domain"
)

// ExecutionRepositoryMemory keeps envelopes in process. Values are stored and
// returned as deep copies so callers never share state with the store.
type ExecutionRepositoryMemory struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewExecutionRepositoryMemory() *ExecutionRepositoryMemory {
	return &ExecutionRepositoryMemory{items: make(map[string][]byte)}
}

func (r *ExecutionRepositoryMemory) Create(ctx context.Context, exec *domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[exec.ID]; exists {
		return fmt.Errorf("execution %s already exists", exec.ID)
	}
	exec.Version = 1
	raw, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("encode execution: %w", err)
	}
	r.items[exec.ID] = raw
	return nil
}

func (r *ExecutionRepositoryMemory) Get(ctx context.Context, id string) (*domain.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return decodeEnvelope(raw)
}

func (r *ExecutionRepositoryMemory) Save(ctx context.Context, exec *domain.Execution, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.items[exec.ID]
	if !ok {
		return domain.ErrNotFound
	}
	current, err := decodeEnvelope(raw)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: execution %s is at version %d, expected %d", domain.ErrVersionConflict, exec.ID, current.Version, expectedVersion)
	}
	next := *exec
	next.Version = expectedVersion + 1
	encoded, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode execution: %w", err)
	}
	r.items[exec.ID] = encoded
	exec.Version = next.Version
	return nil
}

func (r *ExecutionRepositoryMemory) ClaimQueued(ctx context.Context, leaseUntil time.Time) (*domain.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *domain.Execution
	for _, raw := range r.items {
		exec, err := decodeEnvelope(raw)
		if err != nil {
			return nil, err
		}
		if exec.Status != domain.ExecutionStatusQueued {
			continue
		}
		if oldest == nil || exec.CreatedAt.Before(oldest.CreatedAt) {
			oldest = exec
		}
	}
	if oldest == nil {
		return nil, domain.ErrNoWork
	}
	lease := leaseUntil.UTC()
	oldest.Status = domain.ExecutionStatusRunning
	oldest.LeaseUntil = &lease
	oldest.Version++
	oldest.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(oldest)
	if err != nil {
		return nil, fmt.Errorf("encode execution: %w", err)
	}
	r.items[oldest.ID] = raw
	return oldest, nil
}

func (r *ExecutionRepositoryMemory) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Execution
	for _, raw := range r.items {
		exec, err := decodeEnvelope(raw)
		if err != nil {
			return nil, err
		}
		if exec.Overdue(now) {
			out = append(out, exec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline().Before(*out[j].Deadline()) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func decodeEnvelope(raw []byte) (*domain.Execution, error) {
	var exec domain.Execution
	if err := json.Unmarshal(raw, &exec); err != nil {
		return nil, fmt.Errorf("decode execution: %w", err)
	}
	return &exec, nil
}

var _ domain.ExecutionRepository = (*ExecutionRepositoryMemory)(nil)
