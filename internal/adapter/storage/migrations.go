package storage

import (
	"database/sql"
	"embed"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var migrations embed.FS

// MigrateDatabase applies pending schema migrations to db.
func MigrateDatabase(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("mysql"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		return errors.Wrap(err, "apply migrations")
	}

	return nil
}
