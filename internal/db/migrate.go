// Package db opens the link databases and keeps their schema current.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// MigratePostgres applies every pending postgres migration. It opens its own
// connection so closing the migrator cannot affect the application pool.
func MigratePostgres(connStr string) (err error) {
	migrationDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("db: open migration connection: %w", err)
	}
	defer func() {
		if closeErr := migrationDB.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("db: close migration connection: %w", closeErr)
		}
	}()

	driver, err := pgxv5.WithInstance(migrationDB, &pgxv5.Config{})
	if err != nil {
		return fmt.Errorf("db: create postgres migrate driver: %w", err)
	}
	return up("migrations/postgres", "pgx5", driver)
}

// MigrateSQLite applies every pending sqlite migration on db. The migrator
// is not closed because it would close db, which the store keeps using.
func MigrateSQLite(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("db: create sqlite migrate driver: %w", err)
	}
	return up("migrations/sqlite", "sqlite", driver)
}

func up(dir, dbName string, driver database.Driver) error {
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("db: open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, driver)
	if err != nil {
		return fmt.Errorf("db: create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: run migrations: %w", err)
	}
	return nil
}
