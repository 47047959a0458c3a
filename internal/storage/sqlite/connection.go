package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"github.com/ternarybob/lectern/internal/common"
)

// DatabaseFileName is the SQLite file created inside the data directory.
const DatabaseFileName = "lectern.db"

// Database wraps the SQLite connection and owns schema migrations.
type Database struct {
	db     *sql.DB
	path   string
	logger arbor.ILogger
}

// Open opens (or creates) the database at dataDir and applies pending
// migrations. Pragmas are applied on a single pooled connection, so the
// pool is capped at one writer; WAL keeps readers concurrent.
func Open(dataDir string, cfg common.StorageConfig, logger arbor.ILogger) (*Database, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, DatabaseFileName)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	d := &Database{db: db, path: path, logger: logger}

	if err := d.configure(cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database opened")
	return d, nil
}

func (d *Database) configure(cfg common.StorageConfig) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheSizeMB*1024), // negative = KB
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeoutMS),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	if cfg.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := d.db.Exec(pragma); err != nil {
			return fmt.Errorf("pragma failed (%s): %w", pragma, err)
		}
	}
	return nil
}

// DB exposes the underlying handle for the storage layer.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

func (d *Database) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.db.BeginTx(ctx, nil)
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.db.Close()
}
