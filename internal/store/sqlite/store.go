// Package sqlite implements the registry, job and prospect stores on an
// embedded SQLite file, for development, the CLI and integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/config"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/database"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/prospect"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// maxOpenConns bounds the pool; writers serialize on the database lock.
const maxOpenConns = 4

// Store is the SQLite store.
type Store struct {
	db *sql.DB
}

var (
	_ core.Store     = (*Store)(nil)
	_ prospect.Store = (*Store)(nil)
)

// Open opens (or creates) the database file at path. Transactions start
// IMMEDIATE so concurrent writers wait on busy_timeout instead of failing
// on lock upgrade.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	if path == "" {
		return nil, errors.New("open sqlite: empty path")
	}
	dsn := path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	return database.Migrate(ctx, config.DriverSQLite, s.db)
}

// MigrationStatus lists the schema migrations and their state.
func (s *Store) MigrationStatus(ctx context.Context) ([]database.MigrationStatus, error) {
	return database.Status(ctx, config.DriverSQLite, s.db)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// isRecordError reports whether err is a statement error confined to one
// record, as opposed to a lock or I/O failure that affects the batch.
func isRecordError(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	switch sqErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR,
		sqlite3.SQLITE_FULL, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOMEM:
		return false
	}
	return true
}

// sqlValues resolves pgtype values and pointers to plain driver values
// before they reach the driver.
func sqlValues(in []any) ([]any, error) {
	out := make([]any, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case driver.Valuer:
			dv, err := x.Value()
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
			out[i] = dv
		case *float64:
			if x != nil {
				out[i] = *x
			}
		default:
			out[i] = v
		}
	}
	return out, nil
}
