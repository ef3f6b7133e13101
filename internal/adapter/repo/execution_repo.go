package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"creativeflow/internal/domain"
	"creativeflow/internal/infra"
	"creativeflow/internal/sqlinline"
)

// ExecutionRepositoryPG implements domain.ExecutionRepository on PostgreSQL.
// The full envelope lives in a JSONB column; status, version and the
// execution's deadline are duplicated into columns for claiming and sweeping.
type ExecutionRepositoryPG struct {
	db infra.SQLExecutor
}

// NewExecutionRepository creates a new execution repository backed by PostgreSQL.
func NewExecutionRepository(db infra.SQLExecutor) *ExecutionRepositoryPG {
	return &ExecutionRepositoryPG{db: db}
}

// EnsureSchema creates the executions table and its indexes.
func (r *ExecutionRepositoryPG) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{
		sqlinline.QCreateExecutionsTable,
		sqlinline.QCreateExecutionsStatusIndex,
		sqlinline.QCreateExecutionsExpiryIndex,
	} {
		if _, err := r.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure executions schema: %w", err)
		}
	}
	return nil
}

func (r *ExecutionRepositoryPG) Create(ctx context.Context, exec *domain.Execution) error {
	exec.Version = 1
	envelope, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("encode execution: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlinline.QInsertExecution,
		exec.ID,
		string(exec.Status),
		exec.Version,
		envelope,
		exec.Deadline(),
		exec.CreatedAt,
		exec.UpdatedAt,
	)
	return err
}

func (r *ExecutionRepositoryPG) Get(ctx context.Context, id string) (*domain.Execution, error) {
	exec, err := scanEnvelope(r.db.QueryRow(ctx, sqlinline.QSelectExecution, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return exec, err
}

func (r *ExecutionRepositoryPG) Save(ctx context.Context, exec *domain.Execution, expectedVersion int64) error {
	next := *exec
	next.Version = expectedVersion + 1
	envelope, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode execution: %w", err)
	}
	tag, err := r.db.Exec(ctx, sqlinline.QUpdateExecutionCAS,
		exec.ID,
		expectedVersion,
		string(exec.Status),
		envelope,
		exec.Deadline(),
		exec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := r.Get(ctx, exec.ID); errors.Is(gerr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%w: execution %s moved past version %d", domain.ErrVersionConflict, exec.ID, expectedVersion)
	}
	exec.Version = next.Version
	return nil
}

func (r *ExecutionRepositoryPG) ClaimQueued(ctx context.Context, leaseUntil time.Time) (*domain.Execution, error) {
	leaseUntil = leaseUntil.UTC()
	exec, err := scanEnvelope(r.db.QueryRow(ctx, sqlinline.QWorkerClaimExecution, leaseUntil, leaseUntil.Format(time.RFC3339Nano)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoWork
	}
	return exec, err
}

func (r *ExecutionRepositoryPG) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, sqlinline.QSelectOverdueExecutions, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Execution
	for rows.Next() {
		exec, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

// scanEnvelope decodes an (envelope, version) row. The column version wins
// over the one embedded in the JSON.
func scanEnvelope(row pgx.Row) (*domain.Execution, error) {
	var (
		envelope []byte
		version  int64
	)
	if err := row.Scan(&envelope, &version); err != nil {
		return nil, err
	}
	exec, err := decodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	exec.Version = version
	return exec, nil
}

var _ domain.ExecutionRepository = (*ExecutionRepositoryPG)(nil)
