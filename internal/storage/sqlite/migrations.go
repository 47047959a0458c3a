package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate applies schema migrations in order. Each migration runs once,
// inside its own transaction, and is recorded in schema_migrations.
func (d *Database) migrate() error {
	ctx := context.Background()

	if err := d.createMigrationsTable(ctx); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "initial_schema", up: migrateV1},
		{version: 2, name: "fts5_index", up: migrateV2},
	}

	for _, m := range migrations {
		if err := d.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (d *Database) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := d.db.ExecContext(ctx, query)
	return err
}

func (d *Database) runMigration(ctx context.Context, m migration) error {
	var count int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// migrateV1 creates the library/version/page/document hierarchy.
// versions.name is NULL for the unversioned entry; a partial unique index
// enforces at most one such row per library because SQLite treats NULLs
// as distinct in ordinary unique constraints.
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS libraries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,

		`CREATE TABLE IF NOT EXISTS versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			library_id INTEGER NOT NULL,
			name TEXT,
			status TEXT NOT NULL DEFAULT 'not_indexed',
			progress_pages INTEGER NOT NULL DEFAULT 0,
			progress_max_pages INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			source_url TEXT NOT NULL DEFAULT '',
			scraper_options TEXT NOT NULL DEFAULT '',
			started_at INTEGER,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			UNIQUE(library_id, name),
			FOREIGN KEY (library_id) REFERENCES libraries(id) ON DELETE CASCADE
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_unversioned
			ON versions(library_id) WHERE name IS NULL`,

		`CREATE INDEX IF NOT EXISTS idx_versions_status ON versions(status)`,

		`CREATE TABLE IF NOT EXISTS pages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version_id INTEGER NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			etag TEXT,
			last_modified TEXT,
			content_type TEXT NOT NULL DEFAULT '',
			depth INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			UNIQUE(version_id, url),
			FOREIGN KEY (version_id) REFERENCES versions(id) ON DELETE CASCADE
		)`,

		// title/url/path are denormalized from the page so the FTS index can
		// be maintained by row-level triggers alone.
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			page_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			sort_order INTEGER NOT NULL DEFAULT 0,
			embedding BLOB,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			FOREIGN KEY (page_id) REFERENCES pages(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_documents_page ON documents(page_id, sort_order)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// migrateV2 creates the external-content FTS5 index over documents and the
// triggers that keep it in sync. Cascade deletions fire the delete trigger,
// so removing a page keeps the index consistent.
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			content, title, url, path,
			content='documents',
			content_rowid='id',
			tokenize='porter unicode61'
		)`,

		`CREATE TRIGGER IF NOT EXISTS documents_fts_insert AFTER INSERT ON documents BEGIN
			INSERT INTO documents_fts(rowid, content, title, url, path)
			VALUES (new.id, new.content, new.title, new.url, new.path);
		END`,

		`CREATE TRIGGER IF NOT EXISTS documents_fts_delete AFTER DELETE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, content, title, url, path)
			VALUES ('delete', old.id, old.content, old.title, old.url, old.path);
		END`,

		`CREATE TRIGGER IF NOT EXISTS documents_fts_update AFTER UPDATE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, content, title, url, path)
			VALUES ('delete', old.id, old.content, old.title, old.url, old.path);
			INSERT INTO documents_fts(rowid, content, title, url, path)
			VALUES (new.id, new.content, new.title, new.url, new.path);
		END`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}
