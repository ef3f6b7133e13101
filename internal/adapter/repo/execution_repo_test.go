package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"creativeflow/internal/domain"
	"creativeflow/internal/sqlinline"
)

func sampleExecution(status domain.ExecutionStatus) *domain.Execution {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Execution{
		ID:        "0d6f5a0e-8f0b-4a8e-9a57-3c1c9b0d2e11",
		Status:    status,
		Input:     domain.PipelineInput{BriefText: "cold brew coffee for commuters"},
		StageData: domain.StageData{PersonaSelection: []string{"creative-generator-performance"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestExecutionRepositoryPGCreateInsertsVersionOne(t *testing.T) {
	db := &fakeDB{}
	repo := NewExecutionRepository(db)
	exec := sampleExecution(domain.ExecutionStatusQueued)

	if err := repo.Create(context.Background(), exec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if exec.Version != 1 {
		t.Fatalf("expected version 1, got %d", exec.Version)
	}
	if len(db.execs) != 1 || marker(db.execs[0].query) != marker(sqlinline.QInsertExecution) {
		t.Fatalf("expected one insert, got %+v", db.execs)
	}
	args := db.execs[0].args
	if args[1] != "queued" || args[2] != int64(1) {
		t.Fatalf("unexpected status/version args: %v %v", args[1], args[2])
	}
	var stored domain.Execution
	if err := json.Unmarshal(args[3].([]byte), &stored); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if stored.Input.BriefText != exec.Input.BriefText {
		t.Fatalf("envelope lost brief: %+v", stored.Input)
	}
}

func TestExecutionRepositoryPGGetMapsNoRows(t *testing.T) {
	repo := NewExecutionRepository(&fakeDB{})
	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutionRepositoryPGGetUsesColumnVersion(t *testing.T) {
	exec := sampleExecution(domain.ExecutionStatusSuspended)
	exec.Version = 2
	raw, _ := json.Marshal(exec)
	db := &fakeDB{rowByKey: map[string]simpleRow{
		marker(sqlinline.QSelectExecution): envelopeRow(raw, 5),
	}}
	got, err := NewExecutionRepository(db).Get(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 5 || got.Status != domain.ExecutionStatusSuspended {
		t.Fatalf("unexpected execution: version=%d status=%s", got.Version, got.Status)
	}
}

func TestExecutionRepositoryPGSaveAdvancesVersion(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
	exec := sampleExecution(domain.ExecutionStatusRunning)
	exec.Version = 3

	if err := NewExecutionRepository(db).Save(context.Background(), exec, 3); err != nil {
		t.Fatalf("save: %v", err)
	}
	if exec.Version != 4 {
		t.Fatalf("expected version 4, got %d", exec.Version)
	}
	args := db.execs[0].args
	if args[1] != int64(3) {
		t.Fatalf("expected CAS on version 3, got %v", args[1])
	}
	var stored domain.Execution
	if err := json.Unmarshal(args[3].([]byte), &stored); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if stored.Version != 4 {
		t.Fatalf("envelope should carry version 4, got %d", stored.Version)
	}
}

func TestExecutionRepositoryPGSaveConflict(t *testing.T) {
	exec := sampleExecution(domain.ExecutionStatusRunning)
	raw, _ := json.Marshal(exec)
	db := &fakeDB{
		execTag: pgconn.NewCommandTag("UPDATE 0"),
		rowByKey: map[string]simpleRow{
			marker(sqlinline.QSelectExecution): envelopeRow(raw, 7),
		},
	}
	err := NewExecutionRepository(db).Save(context.Background(), exec, 3)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestExecutionRepositoryPGSaveMissing(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 0")}
	err := NewExecutionRepository(db).Save(context.Background(), sampleExecution(domain.ExecutionStatusRunning), 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutionRepositoryPGClaimQueuedNoWork(t *testing.T) {
	_, err := NewExecutionRepository(&fakeDB{}).ClaimQueued(context.Background(), time.Now())
	if !errors.Is(err, domain.ErrNoWork) {
		t.Fatalf("expected ErrNoWork, got %v", err)
	}
}

func TestExecutionRepositoryPGClaimQueuedWritesLease(t *testing.T) {
	lease := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	claimed := sampleExecution(domain.ExecutionStatusRunning)
	claimed.LeaseUntil = &lease
	raw, _ := json.Marshal(claimed)
	db := &fakeDB{rowByKey: map[string]simpleRow{marker(sqlinline.QWorkerClaimExecution): envelopeRow(raw, 2)}}

	got, err := NewExecutionRepository(db).ClaimQueued(context.Background(), lease)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got.LeaseUntil == nil || !got.LeaseUntil.Equal(lease) || got.Version != 2 {
		t.Fatalf("unexpected claim: %+v", got)
	}
	args := db.rowCalls[0].args
	if args[0] != lease || args[1] != "2026-03-01T10:30:00Z" {
		t.Fatalf("lease not passed to the claim: %v", args)
	}
}

func TestExecutionRepositoryPGDeadlineColumn(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := NewExecutionRepository(db)
	lease := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	expires := lease.Add(time.Hour)

	running := sampleExecution(domain.ExecutionStatusRunning)
	running.LeaseUntil = &lease
	running.ExpiresAt = &expires
	if err := repo.Save(context.Background(), running, 1); err != nil {
		t.Fatalf("save running: %v", err)
	}
	suspended := sampleExecution(domain.ExecutionStatusSuspended)
	suspended.ExpiresAt = &expires
	if err := repo.Save(context.Background(), suspended, 2); err != nil {
		t.Fatalf("save suspended: %v", err)
	}
	completed := sampleExecution(domain.ExecutionStatusCompleted)
	completed.ExpiresAt = &expires
	if err := repo.Save(context.Background(), completed, 3); err != nil {
		t.Fatalf("save completed: %v", err)
	}

	if got := db.execs[0].args[4].(*time.Time); !got.Equal(lease) {
		t.Fatalf("running deadline = %v, want lease %v", got, lease)
	}
	if got := db.execs[1].args[4].(*time.Time); !got.Equal(expires) {
		t.Fatalf("suspended deadline = %v, want %v", got, expires)
	}
	if got := db.execs[2].args[4].(*time.Time); got != nil {
		t.Fatalf("terminal execution should have no deadline, got %v", got)
	}
}

func TestExecutionRepositoryPGListOverdue(t *testing.T) {
	a := sampleExecution(domain.ExecutionStatusSuspended)
	b := sampleExecution(domain.ExecutionStatusSuspended)
	b.ID = "9a1b4c7d-2e5f-4a8b-9c0d-1e2f3a4b5c6d"
	rawA, _ := json.Marshal(a)
	rawB, _ := json.Marshal(b)
	db := &fakeDB{rows: &envelopeRows{rows: []simpleRow{envelopeRow(rawA, 2), envelopeRow(rawB, 4)}}}

	got, err := NewExecutionRepository(db).ListOverdue(context.Background(), time.Now(), 10)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(got) != 2 || got[1].ID != b.ID || got[1].Version != 4 {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestEnsureSchemaRunsEveryStatement(t *testing.T) {
	db := &fakeDB{}
	if err := NewExecutionRepository(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if len(db.execs) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(db.execs))
	}
}
