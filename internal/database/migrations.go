package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// MigrationRunner applies the session schema migrations before the Postgres
// store starts serving. The store never runs against an unmigrated schema.
type MigrationRunner struct {
	migrate *migrate.Migrate
	logger  *logrus.Logger
}

// NewMigrationRunner creates a runner from a file-based migration source and
// a database URL.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}
	return &MigrationRunner{migrate: m, logger: logger}, nil
}

// Up applies all pending migrations. An already-current schema is not an
// error.
func (mr *MigrationRunner) Up() error {
	if err := mr.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mr.logger.Info("Session schema already current")
			return nil
		}
		return fmt.Errorf("applying session schema migrations: %w", err)
	}

	version, dirty, err := mr.migrate.Version()
	if err != nil {
		mr.logger.WithError(err).Warn("Could not read schema version after migration")
		return nil
	}
	mr.logger.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info("Session schema migrated")
	return nil
}

// Close releases the migration source and its database handle.
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}
