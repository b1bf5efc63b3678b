// Package database embeds the schema migrations of both store dialects and
// applies them with goose.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// MigrationStatus is one embedded migration and whether it is applied.
type MigrationStatus struct {
	Version int64  `json:"version" yaml:"version"`
	Source  string `json:"source" yaml:"source"`
	Applied bool   `json:"applied" yaml:"applied"`
}

// Migrations returns the migration files of a driver.
func Migrations(driver string) (fs.FS, error) {
	switch driver {
	case config.DriverPostgres:
		return fs.Sub(migrations, "migrations/postgres")
	case config.DriverSQLite:
		return fs.Sub(migrations, "migrations/sqlite")
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func newProvider(driver string, db *sql.DB) (*goose.Provider, error) {
	fsys, err := Migrations(driver)
	if err != nil {
		return nil, err
	}
	dialect := goose.DialectPostgres
	if driver == config.DriverSQLite {
		dialect = goose.DialectSQLite3
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	return p, nil
}

// Migrate applies every pending migration and returns how many ran.
func Migrate(ctx context.Context, driver string, db *sql.DB) (int, error) {
	p, err := newProvider(driver, db)
	if err != nil {
		return 0, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		slog.Info("migration applied",
			"driver", driver,
			"version", r.Source.Version,
			"duration", r.Duration,
		)
	}
	return len(results), nil
}

// Status lists the embedded migrations with their applied state.
func Status(ctx context.Context, driver string, db *sql.DB) ([]MigrationStatus, error) {
	p, err := newProvider(driver, db)
	if err != nil {
		return nil, err
	}
	states, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(states))
	for _, s := range states {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Source:  s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

// MigratePool runs Migrate over a pgx pool through the database/sql bridge.
func MigratePool(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return Migrate(ctx, config.DriverPostgres, db)
}

// StatusPool is Status over a pgx pool.
func StatusPool(ctx context.Context, pool *pgxpool.Pool) ([]MigrationStatus, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return Status(ctx, config.DriverPostgres, db)
}
