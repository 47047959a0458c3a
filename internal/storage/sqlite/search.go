package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/services/embeddings"
)

// SearchFullText runs an FTS5 query scoped to one version. The raw query is
// matched both as an exact phrase and as an AND of its keywords, so quoted
// code identifiers and loose natural-language queries both behave. Hits come
// back best-first with 1-based ranks.
func (s *Store) SearchFullText(ctx context.Context, library string, version *string, query string, limit int) ([]models.SearchHit, error) {
	verID, err := s.versionID(ctx, library, version)
	if err != nil {
		return nil, err
	}

	match := ftsMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT d.id, d.page_id, bm25(documents_fts, 1.0, 2.0, 0.5, 1.0) AS score
		FROM documents_fts f
		JOIN documents d ON d.id = f.rowid
		JOIN pages p ON p.id = d.page_id
		WHERE documents_fts MATCH ? AND p.version_id = ?
		ORDER BY score, d.id
		LIMIT ?`, match, verID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var (
			hit   models.SearchHit
			score float64
		)
		if err := rows.Scan(&hit.ChunkID, &hit.PageID, &score); err != nil {
			return nil, err
		}
		// bm25 is negative, smaller is better; flip to a positive relevance
		hit.Score = -score
		hit.Rank = len(hits) + 1
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ftsMatchQuery builds the FTS5 MATCH expression: the exact phrase OR'd with
// an AND of the individual keywords. Embedded quotes are doubled per FTS5
// string syntax.
func ftsMatchQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}

	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`

	tokens := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) <= 1 {
		return phrase
	}

	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return "(" + phrase + ") OR (" + strings.Join(quoted, " AND ") + ")"
}

// SearchVector brute-force scans the stored embeddings of one version and
// returns the chunks most similar to the query vector. Corpora per version
// are small enough that a linear scan beats maintaining an ANN index.
func (s *Store) SearchVector(ctx context.Context, library string, version *string, embedding []float32, limit int) ([]models.SearchHit, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	verID, err := s.versionID(ctx, library, version)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT d.id, d.page_id, d.embedding
		FROM documents d
		JOIN pages p ON p.id = d.page_id
		WHERE p.version_id = ? AND d.embedding IS NOT NULL`, verID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var (
			hit  models.SearchHit
			blob []byte
		)
		if err := rows.Scan(&hit.ChunkID, &hit.PageID, &blob); err != nil {
			return nil, err
		}
		vec, err := embeddings.DecodeVector(blob)
		if err != nil {
			s.logger.Warn().Err(err).Int64("chunk_id", hit.ChunkID).Msg("Skipping chunk with corrupt embedding")
			continue
		}
		hit.Score = embeddings.CosineSimilarity(embedding, vec)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

func (s *Store) GetChunksByPage(ctx context.Context, pageID int64) ([]models.Document, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, page_id, content, metadata, sort_order, created_at, updated_at
		FROM documents WHERE page_id = ? ORDER BY sort_order`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *Store) GetChunkByID(ctx context.Context, chunkID int64) (*models.Document, *models.Page, error) {
	doc, err := scanDocument(s.db.DB().QueryRowContext(ctx, `
		SELECT id, page_id, content, metadata, sort_order, created_at, updated_at
		FROM documents WHERE id = ?`, chunkID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrChunkNotFound
		}
		return nil, nil, err
	}

	page, err := scanPage(s.db.DB().QueryRowContext(ctx, `
		SELECT id, version_id, url, title, etag, last_modified, content_type, depth, created_at, updated_at
		FROM pages WHERE id = ?`, doc.PageID))
	if err != nil {
		return nil, nil, err
	}
	return doc, page, nil
}
