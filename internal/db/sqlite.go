// Package db handles opening the broker's embedded SQLite store, applying
// schema migrations, and classifying low-level SQL errors.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDBFileName is the name of the broker database file inside the
// project-local planning directory.
const DefaultDBFileName = "codex_review_broker.sqlite3"

// DefaultDBPath returns the default path of the broker database for the
// given repository root.
func DefaultDBPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".planning", DefaultDBFileName)
}

// SqliteConfig holds the configuration for the sqlite-backed store.
type SqliteConfig struct {
	// DatabaseFileName is the full path of the database file.
	DatabaseFileName string

	// SkipMigrations, if set, leaves the schema untouched on open. Used
	// by tests that want to exercise migration failure paths.
	SkipMigrations bool
}

// SqliteStore is a sqlite-backed database holding the broker state. The
// process keeps exactly one writable connection for its lifetime; WAL mode
// lets reads proceed on the same connection without blocking.
type SqliteStore struct {
	cfg *SqliteConfig

	*sql.DB

	log *slog.Logger
}

// NewSqliteStore opens (creating if needed) the database at the configured
// path, applies pragmas, and runs all pending migrations.
func NewSqliteStore(cfg *SqliteConfig, log *slog.Logger) (*SqliteStore, error) {
	dir := filepath.Dir(cfg.DatabaseFileName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w",
			err)
	}

	// Open with foreign keys and WAL mode enabled via URI. The immediate
	// txlock makes every explicit transaction a BEGIN IMMEDIATE, so the
	// write coordinator takes the reserved lock up front rather than on
	// the first UPDATE.
	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"+
			"&_txlock=immediate",
		cfg.DatabaseFileName,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer connection shared with readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &SqliteStore{
		cfg: cfg,
		DB:  db,
		log: log,
	}

	if !cfg.SkipMigrations {
		if err := s.ApplyAllMigrations(TargetLatest); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	return s, nil
}

// configurePragmas sets additional SQLite pragmas on the open connection.
func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		// NORMAL gives good durability in WAL mode with better
		// performance than FULL.
		"PRAGMA synchronous = NORMAL",

		// Negative value is in KiB, 64MB cache.
		"PRAGMA cache_size = -65536",

		// Keep temporary tables in memory.
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// ApplyAllMigrations applies the embedded migrations up (or down) to the
// given target.
func (s *SqliteStore) ApplyAllMigrations(target MigrationTarget,
	opts ...MigrateOpt) error {

	migrateOpts := defaultMigrateOptions()
	for _, opt := range opts {
		opt(migrateOpts)
	}

	driver, err := sqlite3.WithInstance(s.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}

	return applyMigrations(
		sqlSchemas, driver, "migrations", "reviewbroker", target,
		migrateOpts, s.log,
	)
}

// Checkpoint forces a WAL checkpoint that truncates the write-ahead log.
// Running this before close avoids phantom file locks on platforms with
// advisory locking on the -wal and -shm files.
func (s *SqliteStore) Checkpoint() error {
	if _, err := s.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}

	return nil
}

// Close checkpoints the WAL and closes the underlying connection.
func (s *SqliteStore) Close() error {
	if err := s.Checkpoint(); err != nil {
		s.log.Warn("Shutdown checkpoint failed", "err", err)
	}

	return s.DB.Close()
}
