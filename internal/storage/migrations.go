package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

//go:embed migrations/*.sql
var sqlMigrations embed.FS

// migrationLogger adapts the package logger to migrate.Logger.
type migrationLogger struct{}

func (migrationLogger) Printf(format string, v ...any) {
	log.Infof(format, v...)
}

func (migrationLogger) Verbose() bool { return false }

// runMigrations brings db up to the latest kv_entries schema version.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite_migrate.WithInstance(db, &sqlite_migrate.Config{})
	if err != nil {
		return fmt.Errorf("storage: creating sqlite migration driver: %w", err)
	}

	fileServer, err := httpfs.New(http.FS(sqlMigrations), "migrations")
	if err != nil {
		return fmt.Errorf("storage: opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("migrations", fileServer, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("storage: constructing migrator: %w", err)
	}
	m.Log = migrationLogger{}

	log.InfoS(context.Background(), "storage: applying migrations")

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("storage: applying migrations: %w", err)
	}

	return nil
}
