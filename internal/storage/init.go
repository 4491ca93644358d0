package storage

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq"
)

const migrationPath = "migrations"

// runMigrations brings the viewpoint table up to date. Migrations run over
// their own short-lived connection, separate from the request-serving pool.
func runMigrations(dsn string) error {
	const op = "storage.migrations"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := goose.Up(db, migrationPath); err != nil && err != goose.ErrNoNextVersion {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
