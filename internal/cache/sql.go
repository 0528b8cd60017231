package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQL stores entries in a database/sql table. It is used with the embedded
// SQLite driver for the CLI's local cache.
type SQL struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLite opens (creating if needed) a SQLite cache file at path.
func OpenSQLite(path string, ttl time.Duration) (*SQL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s, err := NewSQL(db, ttl)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps db and creates the cache table if it does not exist.
func NewSQL(db *sql.DB, ttl time.Duration) (*SQL, error) {
	s := &SQL{db: db, ttl: ttl, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to migrate cache table: %w", err)
	}
	return s, nil
}

func (s *SQL) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS detection_cache (
		cache_key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `SELECT value, expires_at FROM detection_cache WHERE cache_key = ?`

	var (
		value   []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sql cache get: %w", err)
	}
	if expires != 0 && s.now().Unix() >= expires {
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQL) Put(ctx context.Context, key string, value []byte) error {
	query := `
	INSERT INTO detection_cache (cache_key, value, expires_at) VALUES (?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`

	var expires int64
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl).Unix()
	}
	if _, err := s.db.ExecContext(ctx, query, key, value, expires); err != nil {
		return fmt.Errorf("sql cache put: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (s *SQL) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM detection_cache WHERE expires_at != 0 AND expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sql cache purge: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQL) Close() error {
	return s.db.Close()
}
