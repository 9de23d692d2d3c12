package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/humanwheel-leaderboard/internal/config"
	"github.com/humanwheel-leaderboard/internal/domain"
	"github.com/humanwheel-leaderboard/internal/photos"
)

// Snapshot is a durable copy of one key-value record
type Snapshot struct {
	StorageKey string
	Category   string
	PlayerID   string
	Payload    []byte
	SyncedAt   time.Time
}

// Repository provides PostgreSQL-based storage for record snapshots and
// player photos
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS player_snapshots (
			storage_key VARCHAR(255) PRIMARY KEY,
			category VARCHAR(64) NOT NULL,
			player_id VARCHAR(128) NOT NULL,
			payload JSONB NOT NULL,
			synced_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS player_photos (
			name VARCHAR(255) PRIMARY KEY,
			content_type VARCHAR(100) NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_player_snapshots_category ON player_snapshots(category)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// UpsertSnapshots writes snapshots in a single batch
func (r *Repository) UpsertSnapshots(ctx context.Context, snapshots []Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO player_snapshots (storage_key, category, player_id, payload, synced_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (storage_key)
		DO UPDATE SET category = $2, player_id = $3, payload = $4, synced_at = $5
	`
	for _, s := range snapshots {
		batch.Queue(query, s.StorageKey, s.Category, s.PlayerID, s.Payload, s.SyncedAt)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch upserting snapshots: %w", err)
		}
	}
	return nil
}

// DeleteSnapshotsNotIn removes snapshots whose key is no longer live
func (r *Repository) DeleteSnapshotsNotIn(ctx context.Context, keys []string) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM player_snapshots WHERE NOT (storage_key = ANY($1))`, keys)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListSnapshots returns every snapshot ordered by key
func (r *Repository) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT storage_key, category, player_id, payload, synced_at
		FROM player_snapshots
		ORDER BY storage_key
	`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.StorageKey, &s.Category, &s.PlayerID, &s.Payload, &s.SyncedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// DeleteAllSnapshots clears the snapshot table
func (r *Repository) DeleteAllSnapshots(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM player_snapshots`)
	if err != nil {
		return 0, fmt.Errorf("deleting snapshots: %w", err)
	}
	return result.RowsAffected(), nil
}

// Put stores a photo; existing names are never overwritten
func (r *Repository) Put(ctx context.Context, blob photos.Blob) error {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO player_photos (name, content_type, data, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`, blob.Name, blob.ContentType, blob.Data, blob.CreatedAt)
	if err != nil {
		return fmt.Errorf("storing photo: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("photo %s already exists", blob.Name)
	}
	return nil
}

// Get loads a photo by name
func (r *Repository) Get(ctx context.Context, name string) (photos.Blob, error) {
	var blob photos.Blob
	err := r.pool.QueryRow(ctx, `
		SELECT name, content_type, data, created_at
		FROM player_photos
		WHERE name = $1
	`, name).Scan(&blob.Name, &blob.ContentType, &blob.Data, &blob.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return photos.Blob{}, domain.ErrPhotoNotFound
		}
		return photos.Blob{}, fmt.Errorf("getting photo: %w", err)
	}
	return blob, nil
}

// List returns every photo name
func (r *Repository) List(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM player_photos ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}
	defer rows.Close()

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning photo names: %w", err)
	}
	return names, nil
}

// Delete removes a photo; a missing photo is not an error
func (r *Repository) Delete(ctx context.Context, name string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM player_photos WHERE name = $1`, name); err != nil {
		return fmt.Errorf("deleting photo: %w", err)
	}
	return nil
}

var _ photos.BlobStore = (*Repository)(nil)
