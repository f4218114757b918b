package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/migrations"
)

// OpenPostgresSQL opens a database/sql handle for golang-migrate, which does
// not accept a pgx pool.
func OpenPostgresSQL(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	return db, nil
}

// RunPostgresMigrations applies the embedded PostgreSQL migrations.
// It is idempotent and safe to call multiple times.
func RunPostgresMigrations(db *sql.DB, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	return runMigrations(migrations.Postgres(), driver, "postgres", logger)
}

// RunSQLiteMigrations applies the embedded SQLite migrations.
func RunSQLiteMigrations(db *SQLiteDB, logger *zap.Logger) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	return runMigrations(migrations.SQLite(), driver, "sqlite3", logger)
}

func runMigrations(src fs.FS, driver migratedb.Driver, name string, logger *zap.Logger) error {
	source, err := iofs.New(src, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	// m.Close would also close the caller's *sql.DB through the driver, so
	// only the source is released here.
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warn("Failed to close migration source", zap.Error(err))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)", zap.String("driver", name))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully",
		zap.String("driver", name),
		zap.Uint("version", newVersion))
	return nil
}
