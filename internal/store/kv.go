// Package store persists player records in a key-value namespace.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("key not found")

// Entry is a single key-value pair
type Entry struct {
	Key   string
	Value []byte
}

// KV is the minimal key-value contract the leaderboard needs. Backends are
// swappable: Redis in production, memory in tests.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// MultiDelete removes keys and reports how many existed
	MultiDelete(ctx context.Context, keys []string) (int, error)
	// GetByPrefix returns every entry whose key starts with prefix, ordered by key
	GetByPrefix(ctx context.Context, prefix string) ([]Entry, error)
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
