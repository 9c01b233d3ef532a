package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func setupGoose() error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(migrationsFS)
	return nil
}

// Migrate applies every pending migration.
func Migrate(db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Rollback reverts the most recent migration.
func Rollback(db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.Down(db, "migrations"); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}
