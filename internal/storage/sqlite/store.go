package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/services/embeddings"
)

var (
	ErrLibraryNotFound = errors.New("library not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrPageNotFound    = errors.New("page not found")
	ErrChunkNotFound   = errors.New("chunk not found")
)

// Store implements interfaces.DocumentStore on SQLite. Chunk embeddings are
// generated through the configured provider before the storage transaction
// opens, so a provider failure never leaves a page half-written.
type Store struct {
	db       *Database
	embedder interfaces.EmbeddingProvider
	logger   arbor.ILogger
}

var _ interfaces.DocumentStore = (*Store)(nil)

func NewStore(db *Database, embedder interfaces.EmbeddingProvider, logger arbor.ILogger) *Store {
	return &Store{db: db, embedder: embedder, logger: logger}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AddScrapeResult stores one processed page. The page row is upserted by
// (version, url); its chunks are replaced wholesale in the same transaction.
func (s *Store) AddScrapeResult(ctx context.Context, library string, version *string, depth int, result *models.ScrapeResult) error {
	if result == nil {
		return fmt.Errorf("nil scrape result for library %s", library)
	}

	var vectors [][]float32
	if s.embedder != nil && s.embedder.IsAvailable() && len(result.Chunks) > 0 {
		texts := make([]string, len(result.Chunks))
		for i, c := range result.Chunks {
			texts[i] = c.Content
		}
		var err error
		vectors, err = s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding failed for %s: %w", result.URL, err)
		}
		if len(vectors) != len(result.Chunks) {
			return fmt.Errorf("embedding count mismatch for %s: %d chunks, %d vectors", result.URL, len(result.Chunks), len(vectors))
		}
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	libID, err := ensureLibrary(ctx, tx, library)
	if err != nil {
		return err
	}
	verID, err := ensureVersion(ctx, tx, libID, version)
	if err != nil {
		return err
	}

	var pageID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO pages (version_id, url, title, etag, last_modified, content_type, depth)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id, url) DO UPDATE SET
			title = excluded.title,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			content_type = excluded.content_type,
			depth = excluded.depth,
			updated_at = strftime('%s', 'now')
		RETURNING id`,
		verID, result.URL, result.Title, result.Etag, result.LastModified, result.ContentType, depth).Scan(&pageID)
	if err != nil {
		return fmt.Errorf("failed to upsert page %s: %w", result.URL, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE page_id = ?", pageID); err != nil {
		return fmt.Errorf("failed to clear chunks for page %d: %w", pageID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (page_id, content, title, url, path, metadata, sort_order, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, chunk := range result.Chunks {
		meta, err := json.Marshal(models.ChunkMetadata{
			Level: chunk.Section.Level,
			Path:  chunk.Section.Path,
			Types: chunk.Types,
		})
		if err != nil {
			return fmt.Errorf("failed to encode chunk metadata: %w", err)
		}

		var blob []byte
		if vectors != nil && len(vectors[i]) > 0 {
			blob = embeddings.EncodeVector(vectors[i])
		}

		path := strings.Join(chunk.Section.Path, " / ")
		if _, err := stmt.ExecContext(ctx, pageID, chunk.Content, result.Title, result.URL, path, string(meta), i, blob); err != nil {
			return fmt.Errorf("failed to insert chunk %d of %s: %w", i, result.URL, err)
		}
	}

	return tx.Commit()
}

func (s *Store) DeletePage(ctx context.Context, pageID int64) error {
	res, err := s.db.DB().ExecContext(ctx, "DELETE FROM pages WHERE id = ?", pageID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPageNotFound
	}
	return nil
}

func (s *Store) GetPagesByVersion(ctx context.Context, library string, version *string) ([]models.Page, error) {
	verID, err := s.versionID(ctx, library, version)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, version_id, url, title, etag, last_modified, content_type, depth, created_at, updated_at
		FROM pages WHERE version_id = ? ORDER BY id`, verID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}

// RemoveAllDocuments clears every page (and, by cascade, every chunk) of a
// version while keeping the version row and its stored scraper options.
func (s *Store) RemoveAllDocuments(ctx context.Context, library string, version *string) error {
	verID, err := s.versionID(ctx, library, version)
	if err != nil {
		return err
	}
	_, err = s.db.DB().ExecContext(ctx, "DELETE FROM pages WHERE version_id = ?", verID)
	return err
}

// RemoveVersion deletes a version entirely. The parent library row is removed
// when its last version goes.
func (s *Store) RemoveVersion(ctx context.Context, library string, version *string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	norm := models.NormalizeLibraryName(library)
	var libID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM libraries WHERE name = ?", norm).Scan(&libID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLibraryNotFound
		}
		return err
	}

	var res sql.Result
	if version == nil {
		res, err = tx.ExecContext(ctx, "DELETE FROM versions WHERE library_id = ? AND name IS NULL", libID)
	} else {
		res, err = tx.ExecContext(ctx, "DELETE FROM versions WHERE library_id = ? AND name = ?", libID, *version)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionNotFound
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM versions WHERE library_id = ?", libID).Scan(&remaining); err != nil {
		return err
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM libraries WHERE id = ?", libID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)
	queries := map[string]string{
		"libraries":  "SELECT COUNT(*) FROM libraries",
		"versions":   "SELECT COUNT(*) FROM versions",
		"pages":      "SELECT COUNT(*) FROM pages",
		"chunks":     "SELECT COUNT(*) FROM documents",
		"vectorized": "SELECT COUNT(*) FROM documents WHERE embedding IS NOT NULL",
	}
	for name, query := range queries {
		var count int64
		if err := s.db.DB().QueryRowContext(ctx, query).Scan(&count); err != nil {
			return nil, fmt.Errorf("stats query %s failed: %w", name, err)
		}
		stats[name] = count
	}
	return stats, nil
}

// ensureLibrary inserts the library row if missing and returns its id.
// The normalized name is the unique key; the display name keeps the casing
// of the first registration.
func ensureLibrary(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	norm := models.NormalizeLibraryName(name)
	display := strings.TrimSpace(name)
	if display == "" {
		display = norm
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO libraries (name, display_name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		norm, display); err != nil {
		return 0, err
	}

	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM libraries WHERE name = ?", norm).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func ensureVersion(ctx context.Context, tx *sql.Tx, libraryID int64, version *string) (int64, error) {
	var (
		id  int64
		err error
	)
	if version == nil {
		err = tx.QueryRowContext(ctx, "SELECT id FROM versions WHERE library_id = ? AND name IS NULL", libraryID).Scan(&id)
	} else {
		err = tx.QueryRowContext(ctx, "SELECT id FROM versions WHERE library_id = ? AND name = ?", libraryID, *version).Scan(&id)
	}
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, "INSERT INTO versions (library_id, name) VALUES (?, ?)", libraryID, version)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// versionID resolves (library, version) without creating rows.
func (s *Store) versionID(ctx context.Context, library string, version *string) (int64, error) {
	norm := models.NormalizeLibraryName(library)

	var (
		id  int64
		err error
	)
	if version == nil {
		err = s.db.DB().QueryRowContext(ctx, `
			SELECT v.id FROM versions v
			JOIN libraries l ON l.id = v.library_id
			WHERE l.name = ? AND v.name IS NULL`, norm).Scan(&id)
	} else {
		err = s.db.DB().QueryRowContext(ctx, `
			SELECT v.id FROM versions v
			JOIN libraries l ON l.id = v.library_id
			WHERE l.name = ? AND v.name = ?`, norm, *version).Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrVersionNotFound
	}
	return id, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPage(row rowScanner) (*models.Page, error) {
	var (
		p                    models.Page
		createdAt, updatedAt int64
	)
	err := row.Scan(&p.ID, &p.VersionID, &p.URL, &p.Title, &p.Etag, &p.LastModified,
		&p.ContentType, &p.Depth, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d                    models.Document
		meta                 string
		createdAt, updatedAt int64
	)
	err := row.Scan(&d.ID, &d.PageID, &d.Content, &meta, &d.SortOrder, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
		return nil, fmt.Errorf("corrupt chunk metadata for document %d: %w", d.ID, err)
	}
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &d, nil
}
