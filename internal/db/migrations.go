package db

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql
var migrationFiles embed.FS

// MigratePostgres applies every pending embedded migration against the
// postgres database identified by dbURL. AutoMigrate in db.go keeps sqlite
// dev/test databases current; production postgres deployments run this
// explicitly (e.g. from cmd/toon-server before the HTTP listener starts) so
// schema changes are reviewable as ordinary SQL diffs.
func MigratePostgres(dbURL string) error {
	source, err := iofs.New(migrationFiles, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("initializing migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}

	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
