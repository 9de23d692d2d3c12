package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/humanwheel-leaderboard/internal/domain"
	"github.com/humanwheel-leaderboard/internal/retry"
)

// DefaultNamespace is the key prefix every player record lives under
const DefaultNamespace = "leaderboard"

// PlayerStore maps player records onto KV keys of the form
// {namespace}_{category}_{id}. Reads are retried with backoff; writes are
// one-shot and last write wins.
type PlayerStore struct {
	kv        KV
	namespace string
	retryOpts []retry.Option
	logger    *slog.Logger
}

// NewPlayerStore creates a store over kv. Extra retry options are appended
// to the store's logging hook.
func NewPlayerStore(kv KV, namespace string, logger *slog.Logger, retryOpts ...retry.Option) *PlayerStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	s := &PlayerStore{
		kv:        kv,
		namespace: namespace,
		logger:    logger,
	}
	s.retryOpts = append([]retry.Option{retry.WithOnRetry(s.logRetry)}, retryOpts...)
	return s
}

func (s *PlayerStore) logRetry(attempt int, delay time.Duration, err error) {
	s.logger.Warn("store read failed, retrying",
		"attempt", attempt,
		"delay", delay,
		"error", err,
	)
}

// Key returns the storage key for a record
func (s *PlayerStore) Key(category, id string) string {
	return s.CategoryPrefix(category) + id
}

// CategoryPrefix returns the key prefix shared by a category's records
func (s *PlayerStore) CategoryPrefix(category string) string {
	return s.NamespacePrefix() + domain.NormalizeCategory(category) + "_"
}

// NamespacePrefix returns the prefix shared by every record
func (s *PlayerStore) NamespacePrefix() string {
	return s.namespace + "_"
}

// List returns the records of one category in key order
func (s *PlayerStore) List(ctx context.Context, category string) ([]domain.PlayerRecord, error) {
	category = domain.NormalizeCategory(category)
	entries, err := s.entries(ctx, s.CategoryPrefix(category))
	if err != nil {
		return nil, err
	}

	records := make([]domain.PlayerRecord, 0, len(entries))
	for _, e := range entries {
		rec, ok := s.decode(e)
		if !ok {
			continue
		}
		// "team_" is also a prefix of "team_b_..." keys
		if rec.Category != "" && domain.NormalizeCategory(rec.Category) != category {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListAll returns every record across all categories in key order
func (s *PlayerStore) ListAll(ctx context.Context) ([]domain.PlayerRecord, error) {
	entries, err := s.entries(ctx, s.NamespacePrefix())
	if err != nil {
		return nil, err
	}

	records := make([]domain.PlayerRecord, 0, len(entries))
	for _, e := range entries {
		if rec, ok := s.decode(e); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Entries returns the raw stored values under the namespace
func (s *PlayerStore) Entries(ctx context.Context) ([]Entry, error) {
	return s.entries(ctx, s.NamespacePrefix())
}

// Get returns a single record
func (s *PlayerStore) Get(ctx context.Context, category, id string) (domain.PlayerRecord, error) {
	key := s.Key(category, id)
	raw, err := retry.Do(ctx, func(ctx context.Context) ([]byte, error) {
		v, err := s.kv.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return v, err
	}, s.retryOpts...)
	if err != nil {
		return domain.PlayerRecord{}, fmt.Errorf("reading player: %w", err)
	}
	if raw == nil {
		return domain.PlayerRecord{}, domain.ErrPlayerNotFound
	}

	rec, ok := s.decode(Entry{Key: key, Value: raw})
	if !ok {
		return domain.PlayerRecord{}, domain.ErrPlayerNotFound
	}
	return rec, nil
}

// Put overwrites the record at category:id
func (s *PlayerStore) Put(ctx context.Context, rec domain.PlayerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding player: %w", err)
	}
	if err := s.kv.Set(ctx, s.Key(rec.Category, rec.ID), data); err != nil {
		return fmt.Errorf("storing player: %w", err)
	}
	return nil
}

// PutEntries writes raw entries back, used when restoring from a snapshot
func (s *PlayerStore) PutEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if !strings.HasPrefix(e.Key, s.NamespacePrefix()) {
			s.logger.Warn("skipping entry outside namespace", "key", e.Key)
			continue
		}
		if err := s.kv.Set(ctx, e.Key, e.Value); err != nil {
			return fmt.Errorf("restoring %s: %w", e.Key, err)
		}
	}
	return nil
}

// Delete removes a record; deleting a missing record is not an error
func (s *PlayerStore) Delete(ctx context.Context, category, id string) error {
	if err := s.kv.Delete(ctx, s.Key(category, id)); err != nil {
		return fmt.Errorf("deleting player: %w", err)
	}
	return nil
}

// DeleteAll removes every record in the namespace and reports how many
func (s *PlayerStore) DeleteAll(ctx context.Context) (int, error) {
	prefix := s.NamespacePrefix()
	keys, err := retry.Do(ctx, func(ctx context.Context) ([]string, error) {
		return s.kv.KeysByPrefix(ctx, prefix)
	}, s.retryOpts...)
	if err != nil {
		return 0, fmt.Errorf("listing player keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := s.kv.MultiDelete(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("deleting players: %w", err)
	}
	return deleted, nil
}

// Empty reports whether the namespace holds no records
func (s *PlayerStore) Empty(ctx context.Context) (bool, error) {
	keys, err := retry.Do(ctx, func(ctx context.Context) ([]string, error) {
		return s.kv.KeysByPrefix(ctx, s.NamespacePrefix())
	}, s.retryOpts...)
	if err != nil {
		return false, fmt.Errorf("listing player keys: %w", err)
	}
	return len(keys) == 0, nil
}

// Ping checks the backend
func (s *PlayerStore) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func (s *PlayerStore) entries(ctx context.Context, prefix string) ([]Entry, error) {
	entries, err := retry.Do(ctx, func(ctx context.Context) ([]Entry, error) {
		return s.kv.GetByPrefix(ctx, prefix)
	}, s.retryOpts...)
	if err != nil {
		return nil, fmt.Errorf("reading players: %w", err)
	}
	return entries, nil
}

// decode parses a stored value leniently; corrupt values are skipped
func (s *PlayerStore) decode(e Entry) (domain.PlayerRecord, bool) {
	var stored domain.StoredRecord
	if err := json.Unmarshal(e.Value, &stored); err != nil {
		s.logger.Warn("skipping corrupt player record", "key", e.Key, "error", err)
		return domain.PlayerRecord{}, false
	}
	return stored.Record(), true
}
