// Package store opens the persistence backend selected by configuration.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/config"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/database"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/prospect"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/store/postgres"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/store/sqlite"
)

// Backend is everything the importer, the prospect service and the
// operational commands need from a database.
type Backend interface {
	core.Store
	prospect.Store
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) (int, error)
	MigrationStatus(ctx context.Context) ([]database.MigrationStatus, error)
	Close() error
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
)

// Open connects to the configured database and, when AutoMigrate is set,
// applies pending migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case config.DriverPostgres, "":
		b, err = postgres.Open(ctx, cfg)
	case config.DriverSQLite:
		b, err = sqlite.Open(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if _, err := b.Migrate(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return b, nil
}
