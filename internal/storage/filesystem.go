package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrNotExist is returned by Read for unknown keys.
	ErrNotExist = errors.New("storage: key does not exist")

	errNoStore    = errors.New("storage: no store configured")
	errInvalidKey = errors.New("storage: invalid key")
)

// FileStore keeps blobs under a root directory. Keys are slash separated and
// never leave the root.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.root
}

// Write stores data under key and returns the normalized key. The file is
// written to a temporary sibling first and renamed into place, so readers
// never observe a partial blob.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	target, clean, err := s.resolve(ctx, key)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create %s: %w", path.Dir(clean), err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: temp file: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmp.Name(), 0o644)
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), target)
	}
	if werr != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: write %s: %w", clean, werr)
	}
	return clean, nil
}

func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	target, clean, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("storage: %s: %w", clean, ErrNotExist)
	case err != nil:
		return nil, fmt.Errorf("storage: read %s: %w", clean, err)
	}
	return data, nil
}

func (s *FileStore) resolve(ctx context.Context, key string) (string, string, error) {
	if s == nil {
		return "", "", errNoStore
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	clean, err := normalizeKey(key)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), clean, nil
}

// normalizeKey turns "/a/./b", "a\\b" and "./a/b" into "a/b" and refuses keys
// that would climb above the root.
func normalizeKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" || strings.Contains("/"+key+"/", "/../") {
		return "", errInvalidKey
	}
	return clean, nil
}
