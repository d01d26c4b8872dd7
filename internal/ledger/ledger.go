// Package ledger tracks which source files have already been ingested,
// making file ingestion idempotent per filename. The table is append-only:
// rows are created once, read many times, never updated or deleted.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ledger is the SQLite-backed dedup ledger.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the ledger database and applies
// pending migrations.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("ledger: creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Ledger{db: db, logger: logger}, nil
}

func applyMigrations(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("ledger: creating migrate driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ledger: loading embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("ledger: creating migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ledger: applying migrations: %w", err)
	}
	return nil
}

// IsProcessed reports whether the filename has an ingestion record.
func (l *Ledger) IsProcessed(ctx context.Context, filename string) (bool, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT count(*) FROM processed_files WHERE filename = ?`, filename,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("ledger: checking %q: %w", filename, err)
	}
	return count > 0, nil
}

// MarkProcessed records the filename. INSERT OR IGNORE makes concurrent
// marking of the same filename a silent no-op instead of a constraint
// failure.
func (l *Ledger) MarkProcessed(ctx context.Context, filename string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_files (filename) VALUES (?)`, filename)
	if err != nil {
		return fmt.Errorf("ledger: marking %q processed: %w", filename, err)
	}
	l.logger.Debug("file marked processed", "filename", filename)
	return nil
}

// Ping reports reachability of the ledger database.
func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ledger: ping: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
