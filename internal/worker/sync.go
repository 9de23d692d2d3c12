package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/humanwheel-leaderboard/internal/config"
	"github.com/humanwheel-leaderboard/internal/domain"
	"github.com/humanwheel-leaderboard/internal/postgres"
	"github.com/humanwheel-leaderboard/internal/store"
)

const defaultBatchSize = 1000

// RecordSource is the live key-value side of the sync
type RecordSource interface {
	Entries(ctx context.Context) ([]store.Entry, error)
	PutEntries(ctx context.Context, entries []store.Entry) error
	Empty(ctx context.Context) (bool, error)
}

// SnapshotRepository is the durable side of the sync
type SnapshotRepository interface {
	UpsertSnapshots(ctx context.Context, snapshots []postgres.Snapshot) error
	DeleteSnapshotsNotIn(ctx context.Context, keys []string) (int64, error)
	ListSnapshots(ctx context.Context) ([]postgres.Snapshot, error)
}

// SyncWorker periodically copies player records into PostgreSQL so they
// survive a key-value store wipe
type SyncWorker struct {
	records   RecordSource
	snapshots SnapshotRepository
	config    *config.SyncConfig
	logger    *slog.Logger
	now       func() time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	records RecordSource,
	snapshots SnapshotRepository,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		records:   records,
		snapshots: snapshots,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			// final copy so the latest writes are durable
			w.RunOnce(context.Background())
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single sync cycle and logs the outcome
func (w *SyncWorker) RunOnce(ctx context.Context) {
	start := time.Now()
	synced, pruned, err := w.SyncToDatabase(ctx)
	if err != nil {
		w.logger.Error("sync cycle failed", "error", err)
		return
	}
	w.logger.Info("sync cycle completed",
		"duration", time.Since(start),
		"synced", synced,
		"pruned", pruned,
	)
}

// SyncToDatabase copies every record into the snapshot table in batches and
// removes snapshots of records that no longer exist. An empty record store
// leaves the snapshots untouched; a reset clears them itself.
func (w *SyncWorker) SyncToDatabase(ctx context.Context) (synced int, pruned int64, err error) {
	entries, err := w.records.Entries(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reading records: %w", err)
	}
	if len(entries) == 0 {
		w.logger.Warn("record store is empty, keeping snapshots")
		return 0, 0, nil
	}

	syncedAt := w.now().UTC()
	snapshots := lo.FilterMap(entries, func(e store.Entry, _ int) (postgres.Snapshot, bool) {
		return w.toSnapshot(e, syncedAt)
	})

	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	for _, batch := range lo.Chunk(snapshots, batchSize) {
		if err := w.snapshots.UpsertSnapshots(ctx, batch); err != nil {
			return synced, 0, fmt.Errorf("upserting snapshots: %w", err)
		}
		synced += len(batch)
	}

	keys := lo.Map(snapshots, func(s postgres.Snapshot, _ int) string { return s.StorageKey })
	pruned, err = w.snapshots.DeleteSnapshotsNotIn(ctx, keys)
	if err != nil {
		return synced, 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return synced, pruned, nil
}

// RestoreIfEmpty copies snapshots back into the key-value store when it
// holds no records, e.g. after a Redis restart without persistence.
// It returns the number of restored records.
func (w *SyncWorker) RestoreIfEmpty(ctx context.Context) (int, error) {
	empty, err := w.records.Empty(ctx)
	if err != nil {
		return 0, fmt.Errorf("checking record store: %w", err)
	}
	if !empty {
		w.logger.Debug("record store populated, skipping restore")
		return 0, nil
	}

	snapshots, err := w.snapshots.ListSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return 0, nil
	}

	entries := lo.Map(snapshots, func(s postgres.Snapshot, _ int) store.Entry {
		return store.Entry{Key: s.StorageKey, Value: s.Payload}
	})
	if err := w.records.PutEntries(ctx, entries); err != nil {
		return 0, fmt.Errorf("restoring records: %w", err)
	}

	w.logger.Info("restored records from snapshots", "count", len(entries))
	return len(entries), nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// toSnapshot skips values that are not JSON objects; the payload column is JSONB
func (w *SyncWorker) toSnapshot(e store.Entry, syncedAt time.Time) (postgres.Snapshot, bool) {
	var stored domain.StoredRecord
	if err := json.Unmarshal(e.Value, &stored); err != nil {
		w.logger.Warn("not snapshotting corrupt record", "key", e.Key, "error", err)
		return postgres.Snapshot{}, false
	}
	return postgres.Snapshot{
		StorageKey: e.Key,
		Category:   domain.NormalizeCategory(stored.Category),
		PlayerID:   stored.ID,
		Payload:    e.Value,
		SyncedAt:   syncedAt,
	}, true
}
