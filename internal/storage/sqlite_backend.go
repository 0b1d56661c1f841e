package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// maxConns caps concurrent connections to the kv_entries sqlite file.
	// SQLite prefers a single writer with multiple readers, matching the
	// pool sizing internal/db uses for the review/mail store.
	maxConns = 25

	// connMaxLifetime bounds how long a pooled connection is reused
	// before being recycled.
	connMaxLifetime = 10 * time.Minute
)

// SqliteConfig configures SqliteBackend.
type SqliteConfig struct {
	// DatabaseFileName is the path to the sqlite file backing the
	// kv_entries table.
	DatabaseFileName string
}

// SqliteBackend is a sqlite3-backed Backend, the reference implementation
// the runtime wires in for components that request durable storage.
type SqliteBackend struct {
	db *sql.DB
}

// NewSqliteBackend opens (creating if needed) a sqlite database at
// cfg.DatabaseFileName, applies WAL-mode pragmas, and migrates the
// kv_entries schema to its latest version.
func NewSqliteBackend(cfg SqliteConfig) (*SqliteBackend, error) {
	dir := filepath.Dir(cfg.DatabaseFileName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("storage: creating database directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		cfg.DatabaseFileName,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: opening database: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: configuring database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SqliteBackend{db: db}, nil
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Get implements Backend.
func (s *SqliteBackend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if namespace == "" {
		return nil, ErrNamespaceRequired
	}

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s/%s: %w", namespace, key, err)
	}

	return value, nil
}

// Set implements Backend.
func (s *SqliteBackend) Set(ctx context.Context, namespace, key string, value []byte) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (namespace, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, namespace, key, value)
	if err != nil {
		return fmt.Errorf("storage: set %s/%s: %w", namespace, key, err)
	}

	return nil
}

// Delete implements Backend.
func (s *SqliteBackend) Delete(ctx context.Context, namespace, key string) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	)
	if err != nil {
		return fmt.Errorf("storage: delete %s/%s: %w", namespace, key, err)
	}

	return nil
}

// ListKeys implements Backend.
func (s *SqliteBackend) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	if namespace == "" {
		return nil, ErrNamespaceRequired
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_entries WHERE namespace = ?`, namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list keys in %s: %w", namespace, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("storage: scanning key: %w", err)
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// Close implements Backend.
func (s *SqliteBackend) Close() error {
	return s.db.Close()
}

// Ensure SqliteBackend implements Backend at compile time.
var _ Backend = (*SqliteBackend)(nil)
