// Package session stores the bearer credential and organization scope the
// dispatcher attaches to every call. State survives application reload; it
// lives in the shared SQLite database.
//
// The package only consumes credentials. Tokens are parsed without
// signature verification solely to detect a passed expiry claim; validity
// is the server's decision.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/csabourin/wampums-client/observe"
)

// Sentinel errors for session operations.
var (
	ErrNilDB = errors.New("session: database is nil")
)

// State keys within the session_state table.
const (
	keyToken        = "token"
	keyOrganization = "organization_id"
)

// Store persists the session credential and tenant scope.
type Store struct {
	db     *sql.DB
	logger observe.Logger
}

// NewStore creates a session store backed by the given database,
// creating its table if needed.
func NewStore(db *sql.DB, logger observe.Logger) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if logger == nil {
		logger = observe.NoopLogger()
	}

	const schema = `CREATE TABLE IF NOT EXISTS session_state (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("session: create table: %w", err)
	}

	return &Store{db: db, logger: logger.WithScope("session")}, nil
}

// Token returns the stored bearer credential. Returns ("", false) when no
// credential is stored or when its expiry claim has passed.
func (s *Store) Token(ctx context.Context) (string, bool) {
	token, ok := s.read(ctx, keyToken)
	if !ok || token == "" {
		return "", false
	}
	if tokenExpired(token) {
		return "", false
	}
	return token, true
}

// SetToken stores the bearer credential.
func (s *Store) SetToken(ctx context.Context, token string) error {
	return s.write(ctx, keyToken, token)
}

// OrganizationID returns the tenant scope identifier, if one is known.
func (s *Store) OrganizationID(ctx context.Context) (string, bool) {
	id, ok := s.read(ctx, keyOrganization)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// SetOrganizationID stores the tenant scope identifier.
func (s *Store) SetOrganizationID(ctx context.Context, id string) error {
	return s.write(ctx, keyOrganization, id)
}

// Clear removes the stored credential. The organization scope is kept:
// a 401 invalidates the session, not the tenant the user belongs to.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_state WHERE k = ?", keyToken); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT v FROM session_state WHERE k = ?", key).Scan(&v)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error(ctx, "session read failed", observe.Field{Key: "error", Value: err.Error()})
		}
		return "", false
	}
	return v, true
}

func (s *Store) write(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO session_state (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v",
		key, value)
	if err != nil {
		return fmt.Errorf("session: write %s: %w", key, err)
	}
	return nil
}

// tokenExpired reports whether the token carries an exp claim in the past.
// Opaque (non-JWT) tokens are never considered expired locally.
func tokenExpired(token string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
