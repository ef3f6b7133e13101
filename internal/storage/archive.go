package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/klauspost/compress/zstd"

	"creativeflow/internal/domain"
)

// Archive stores terminal execution envelopes as zstd-compressed JSON under
// executions/<id>/envelope.json.zst.
type Archive struct {
	store   *FileStore
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewArchive(store *FileStore) (*Archive, error) {
	if store == nil {
		return nil, errors.New("storage: archive needs a file store")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("storage: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("storage: zstd decoder: %w", err)
	}
	return &Archive{store: store, encoder: enc, decoder: dec}, nil
}

func archiveKey(id string) string {
	return path.Join("executions", id, "envelope.json.zst")
}

func (a *Archive) Put(ctx context.Context, exec *domain.Execution) error {
	if !exec.Status.Terminal() {
		return fmt.Errorf("storage: refusing to archive %s execution %s", exec.Status, exec.ID)
	}
	raw, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("storage: encode execution: %w", err)
	}
	if _, err := a.store.Write(ctx, archiveKey(exec.ID), a.encoder.EncodeAll(raw, nil)); err != nil {
		return err
	}
	return nil
}

// Get returns domain.ErrNotFound when the execution was never archived.
func (a *Archive) Get(ctx context.Context, id string) (*domain.Execution, error) {
	compressed, err := a.store.Read(ctx, archiveKey(id))
	if errors.Is(err, ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	raw, err := a.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: decompress %s: %w", id, err)
	}
	var exec domain.Execution
	if err := json.Unmarshal(raw, &exec); err != nil {
		return nil, fmt.Errorf("storage: decode execution %s: %w", id, err)
	}
	return &exec, nil
}

// Close releases the decoder's background goroutines.
func (a *Archive) Close() {
	a.decoder.Close()
}

var _ domain.ExecutionArchive = (*Archive)(nil)
