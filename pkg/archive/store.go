// Package archive keeps exported audit chains in content-addressed storage:
// a local directory, an S3 bucket or a GCS bucket. Objects are named by the
// SHA-256 of their contents, so archiving the same export twice is a no-op.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Get for an unknown reference.
var ErrNotFound = errors.New("archive object not found")

const refPrefix = "sha256:"

// Store is content-addressed storage for audit exports.
type Store interface {
	// Put stores data and returns its reference ("sha256:<hex>").
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the data stored under ref.
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Ref returns the reference data would be stored under.
func Ref(data []byte) string {
	sum := sha256.Sum256(data)
	return refPrefix + hex.EncodeToString(sum[:])
}

// objectName maps a reference to an object name under prefix.
func objectName(prefix, ref string) (string, error) {
	raw, ok := strings.CutPrefix(ref, refPrefix)
	if !ok {
		return "", fmt.Errorf("invalid archive reference %q", ref)
	}
	if b, err := hex.DecodeString(raw); err != nil || len(b) != sha256.Size {
		return "", fmt.Errorf("invalid archive reference %q", ref)
	}
	return prefix + raw + ".jsonl", nil
}

// FileStore keeps objects in a local directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	ref := Ref(data)
	name, _ := objectName("", ref)
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("write archive object: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write archive object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write archive object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("commit archive object: %w", err)
	}
	return ref, nil
}

func (s *FileStore) Get(_ context.Context, ref string) ([]byte, error) {
	name, err := objectName("", ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return data, err
}
