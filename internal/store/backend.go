// Package store persists opaque save blobs under string keys.
//
// A Backend is a plain key-value surface (memory, SQLite or BoltDB). A Gateway
// sits on top of it and maps the logical save slots of one session onto
// namespaced keys.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Backend.Get for a missing key.
var ErrNotFound = errors.New("key not found")

// ErrCorrupt is returned when a stored value no longer matches its checksum.
var ErrCorrupt = errors.New("stored value is corrupt")

// Backend is a key-value store of opaque blobs. Implementations are safe for
// concurrent use so several sessions can share one database file.
type Backend interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
	KindBolt   = "bolt"
)

// Open creates the backend of the given kind. Path is ignored for memory.
func Open(kind, path string) (Backend, error) {
	switch kind {
	case KindMemory, "":
		return NewMemory(), nil
	case KindSQLite:
		return OpenSQLite(path)
	case KindBolt:
		return OpenBolt(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
