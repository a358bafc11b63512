// Package storage opens the shared durable SQLite database used by the
// cache store, the offline mutation queue, and the session state.
//
// The database uses modernc.org/sqlite (pure Go, no CGO) so the client
// library carries no native build requirements.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens or creates the SQLite database at the given DSN.
//
// WAL mode keeps readers from blocking the single writer; the busy timeout
// lets concurrent logical requests queue on the write lock instead of
// failing immediately.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: sqlite pragmas: %w", err)
	}
	// SQLite supports one writer at a time. A small pool is enough for a
	// client-side library and avoids lock contention.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}
