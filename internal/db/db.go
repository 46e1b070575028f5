// Package db wires the persistence layer: connection setup for the dual
// postgres/sqlite backends, idempotent schema migration, and the gorm row
// models every feature package reads and writes through.
package db

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectorFunc opens the underlying *gorm.DB; swapping it is how the
// server chooses between postgres in production and sqlite for local runs
// and tests.
type ConnectorFunc func() (*gorm.DB, zerolog.Logger, error)

// NewPostgreSQLConnector opens a connection to the tenant-shared postgres
// instance, retrying up to 10 times, 3 seconds apart, before giving up.
func NewPostgreSQLConnector(log zerolog.Logger) ConnectorFunc {
	dbHost := os.Getenv("TOON_SQLDB_HOST")
	username := os.Getenv("TOON_SQLDB_USER")
	dbName := os.Getenv("TOON_SQLDB_NAME")
	password := os.Getenv("TOON_SQLDB_PASSWORD")
	sslMode := os.Getenv("TOON_SQLDB_SSLMODE")
	if sslMode == "" {
		sslMode = "require"
	}

	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", dbHost, username, dbName, sslMode, password)

	return func() (*gorm.DB, zerolog.Logger, error) {
		sublogger := log.With().Str("host", dbHost).Str("database", dbName).Logger()

		var lastErr error
		for attempt := 0; attempt < 10; attempt++ {
			sublogger.Info().Msg("connecting to database host")

			conn, err := gorm.Open(postgres.Open(dbURI), &gorm.Config{
				Logger: logger.New(
					&sublogger,
					logger.Config{
						SlowThreshold:             time.Second,
						LogLevel:                  logger.Warn,
						IgnoreRecordNotFoundError: true,
						Colorful:                  false,
					},
				),
				TranslateError: true,
			})
			if err != nil {
				lastErr = err
				sublogger.Warn().Err(err).Msg("database connection attempt failed, retrying")
				time.Sleep(3 * time.Second)
				continue
			}
			return conn, sublogger, nil
		}

		return nil, sublogger, fmt.Errorf("failed to connect to database after retries: %w", lastErr)
	}
}

// NewSQLiteConnector opens a local, single-connection sqlite database —
// used for development and the package test suites.
func NewSQLiteConnector(log zerolog.Logger, path string) ConnectorFunc {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	return func() (*gorm.DB, zerolog.Logger, error) {
		conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		if err != nil {
			return nil, log, err
		}

		conn.Exec("PRAGMA foreign_keys = ON")
		sqlDB, err := conn.DB()
		if err == nil {
			sqlDB.SetMaxOpenConns(1)
		}

		return conn, log, nil
	}
}

// DB is the shared handle every feature package depends on.
type DB struct {
	Conn   *gorm.DB
	Logger zerolog.Logger
}

// Open connects and applies the schema. AutoMigrate is additive and
// idempotent, matching the sqlite/dev path; production postgres deployments
// additionally run the embedded golang-migrate migrations in
// migrations.go before the server starts accepting traffic.
func Open(connect ConnectorFunc) (*DB, error) {
	conn, log, err := connect()
	if err != nil {
		return nil, err
	}

	err = conn.AutoMigrate(
		&Tenant{},
		&DeviceRow{},
		&EventRow{},
		&CommandRow{},
		&FirmwareReleaseRow{},
		&DeviceFirmwareStatusRow{},
		&AuditRow{},
		&EmployeeRow{},
		&ReportRow{},
		&NonceRow{},
		&RateLimitCounterRow{},
	)
	if err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{Conn: conn, Logger: log}, nil
}
