package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// PostgresBackend implements storage.DatabaseStorage over a pgx pool.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend connects to the database and, unless skipMigration is
// set, brings the schema up to date with the embedded goose migrations.
func NewPostgresBackend(skipMigration bool, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	backend := &PostgresBackend{pool: pool}

	if !skipMigration {
		if err := backend.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}

	return backend, nil
}

// Migrate applies the embedded migrations through goose.
func (p *PostgresBackend) Migrate() error {
	goose.SetBaseFS(embeddedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}
