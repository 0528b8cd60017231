package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stwalsh4118/rentroll/internal/database"
)

// DetectionCacheRepository persists cached detection results in PostgreSQL.
// It satisfies cache.Cache and cache.Pinger.
type DetectionCacheRepository interface {
	// EnsureSchema creates the cache table if it does not exist.
	EnsureSchema(ctx context.Context) error

	// Get returns the cached value for key.
	// Returns nil, false, nil if the key is absent or expired (not an error).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Purge deletes expired rows and returns how many were removed.
	Purge(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
}

// querier is the subset of *pgxpool.Pool used by the repository.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// detectionCacheRepository is the concrete implementation of DetectionCacheRepository.
type detectionCacheRepository struct {
	db  querier
	ttl time.Duration
}

// NewDetectionCacheRepository creates a repository on the database pool.
// A ttl of zero stores entries without expiry.
func NewDetectionCacheRepository(db *database.Database, ttl time.Duration) DetectionCacheRepository {
	return &detectionCacheRepository{
		db:  db.Pool,
		ttl: ttl,
	}
}

func (r *detectionCacheRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS detection_cache (
			cache_key  TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create detection_cache table: %w", err)
	}
	return nil
}

func (r *detectionCacheRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `
		SELECT value
		FROM detection_cache
		WHERE cache_key = $1
		  AND (expires_at IS NULL OR expires_at > now())
	`

	var value []byte
	err := r.db.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		// A missing row is a cache miss, not an error.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to query detection cache (key=%s): %w", key, err)
	}
	return value, true, nil
}

func (r *detectionCacheRepository) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO detection_cache (cache_key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE
		SET value = EXCLUDED.value,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = now()
	`

	var expires *time.Time
	if r.ttl > 0 {
		t := time.Now().Add(r.ttl).UTC()
		expires = &t
	}
	if _, err := r.db.Exec(ctx, query, key, value, expires); err != nil {
		return fmt.Errorf("failed to store detection cache (key=%s): %w", key, err)
	}
	return nil
}

func (r *detectionCacheRepository) Purge(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM detection_cache WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge detection cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *detectionCacheRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
