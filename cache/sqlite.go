package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/csabourin/wampums-client/observe"
)

// SQLiteStore is the durable cache implementation. Entries survive
// application reload. Expired rows are kept in place for
// GetIgnoringExpiration and only leave the table through an overwrite or
// an explicit delete.
type SQLiteStore struct {
	db     *sql.DB
	logger observe.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a durable cache store on the given database,
// creating its table if needed.
func NewSQLiteStore(db *sql.DB, logger observe.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if logger == nil {
		logger = observe.NoopLogger()
	}

	const schema = `CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("cache: create table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.WithScope("cache"),
		now:    time.Now,
	}, nil
}

// Get retrieves a fresh value. Storage-engine failures are logged and
// reported as a miss.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool) {
	value, expiresAt, ok := s.load(ctx, key)
	if !ok {
		return nil, false
	}
	if s.now().UnixMilli() >= expiresAt {
		return nil, false
	}
	return value, true
}

// GetIgnoringExpiration retrieves a value regardless of TTL.
func (s *SQLiteStore) GetIgnoringExpiration(ctx context.Context, key string) ([]byte, bool) {
	value, _, ok := s.load(ctx, key)
	return value, ok
}

func (s *SQLiteStore) load(ctx context.Context, key string) ([]byte, int64, bool) {
	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM cache_entries WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error(ctx, "cache read failed, treating as miss",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "error", Value: err.Error()})
		}
		return nil, 0, false
	}
	return value, expiresAt, true
}

// Set stores a value with expiry now+ttl. TTL<=0 means no caching.
// Failures are logged; the returned error exists for callers that want
// it, but the request flow ignores it.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	expiresAt := s.now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		s.logger.Error(ctx, "cache write failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// Delete removes a value. Idempotent.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		s.logger.Error(ctx, "cache delete failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	return nil
}

// DeleteMany removes a set of keys in one statement.
func (s *SQLiteStore) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	query := "DELETE FROM cache_entries WHERE key IN (" + placeholders + ")"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error(ctx, "cache bulk delete failed",
			observe.Field{Key: "count", Value: len(keys)},
			observe.Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("cache: delete %d keys: %w", len(keys), err)
	}
	return nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
