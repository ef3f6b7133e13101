package domain

import (
	"context"
	"time"
)

// ExecutionRepository persists execution envelopes.
type ExecutionRepository interface {
	// Create stores a new execution and sets its version to 1.
	Create(ctx context.Context, exec *Execution) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Execution, error)
	// Save writes exec only if the stored version still equals expectedVersion,
	// otherwise ErrVersionConflict. On success exec.Version is advanced.
	Save(ctx context.Context, exec *Execution, expectedVersion int64) error
	// ClaimQueued moves the oldest queued execution to running with a lease
	// ending at leaseUntil, or returns ErrNoWork.
	ClaimQueued(ctx context.Context, leaseUntil time.Time) (*Execution, error)
	// ListOverdue returns suspended executions past their deadline and
	// running executions past their lease, earliest first.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Execution, error)
}

// ExecutionArchive keeps terminal envelopes after the live store forgets them.
type ExecutionArchive interface {
	Put(ctx context.Context, exec *Execution) error
	Get(ctx context.Context, id string) (*Execution, error)
}
