// Package storage persists saved editor code. A Store is a small key/value
// backend; an Adapter serializes a buffer set under one fixed key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// Store is a key/value backend for saved code.
type Store interface {
	// Get returns ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or overwrites key.
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend"`
	// Path is the directory for the file backend and the database file for sqlite.
	Path string `yaml:"path"`
	// DSN is the postgres connection string. DATABASE_URL is used when empty.
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// DefaultTable holds saved code in the sql backends.
const DefaultTable = "devlearn_saves"

// Open creates the backend named by cfg.Backend. An empty backend means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		dir := cfg.Path
		if dir == "" {
			dir = "saves"
		}
		return NewFileStore(dir)
	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = "devlearn.db"
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("storage: %w", err)
			}
		}
		return NewSQLiteStore(ctx, path, table)
	case BackendPostgres:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		return NewPostgresStore(ctx, dsn, table)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

// isValidIdentifier checks that a table name is safe to interpolate into SQL.
func isValidIdentifier(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for i, c := range name {
		letter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
		if i == 0 && !letter {
			return false
		}
		if !letter && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
