// Package postgres implements the registry, job and prospect stores on
// PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/config"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/database"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/prospect"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the PostgreSQL store. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ core.Store          = (*Store)(nil)
	_ core.RegistryLocker = (*Store)(nil)
	_ prospect.Store      = (*Store)(nil)
)

// Open parses the connection string, applies the pool settings and checks
// the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	return database.MigratePool(ctx, s.pool)
}

// MigrationStatus lists the schema migrations and their state.
func (s *Store) MigrationStatus(ctx context.Context) ([]database.MigrationStatus, error) {
	return database.StatusPool(ctx, s.pool)
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
