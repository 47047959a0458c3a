package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

const defaultLimit = 10

// Service runs hybrid retrieval: vector and full-text candidates fused with
// Reciprocal Rank Fusion, then expanded into readable regions through the
// content-aware assembly strategies.
type Service struct {
	store    interfaces.DocumentStore
	embedder interfaces.EmbeddingProvider
	config   common.SearchConfig
	logger   arbor.ILogger
}

var _ interfaces.SearchService = (*Service)(nil)

func NewService(store interfaces.DocumentStore, embedder interfaces.EmbeddingProvider, config common.SearchConfig, logger arbor.ILogger) *Service {
	return &Service{store: store, embedder: embedder, config: config, logger: logger}
}

// Search resolves the requested version, gathers both ranker legs and
// returns assembled regions best-first. A failing or disabled embedding
// provider degrades to FTS-only rather than failing the query.
func (s *Service) Search(ctx context.Context, library, version, query string, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	resolved, err := s.store.FindBestVersion(ctx, library, version)
	if err != nil {
		return nil, err
	}

	ftsHits, err := s.store.SearchFullText(ctx, library, resolved, query, limit*s.config.FTSOverfetch)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}

	var vectorHits []models.SearchHit
	if s.embedder != nil && s.embedder.IsAvailable() {
		queryVec, err := s.embedder.EmbedQuery(ctx, query)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Query embedding failed, using full-text results only")
		} else if len(queryVec) > 0 {
			vectorHits, err = s.store.SearchVector(ctx, library, resolved, queryVec, limit*s.config.VectorMultiplier)
			if err != nil {
				return nil, fmt.Errorf("vector search failed: %w", err)
			}
		}
	}

	candidates := rrfMerge(vectorHits, ftsHits, s.config.RRFConstant, s.config.VectorWeight, s.config.FTSWeight)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return s.assemble(ctx, candidates)
}

// candidate is one fused hit ready for assembly.
type candidate struct {
	ChunkID int64
	PageID  int64
	Score   float64
}

// rrfMerge fuses the two ranked lists: score(d) = w_vec/(k+rank_vec) +
// w_fts/(k+rank_fts), with an absent rank contributing nothing. Ties break
// on chunk id so ordering is deterministic.
func rrfMerge(vectorHits, ftsHits []models.SearchHit, k int, vectorWeight, ftsWeight float64) []candidate {
	merged := make(map[int64]*candidate)

	accumulate := func(hits []models.SearchHit, weight float64) {
		for _, hit := range hits {
			c, ok := merged[hit.ChunkID]
			if !ok {
				c = &candidate{ChunkID: hit.ChunkID, PageID: hit.PageID}
				merged[hit.ChunkID] = c
			}
			c.Score += weight / float64(k+hit.Rank)
		}
	}
	accumulate(vectorHits, vectorWeight)
	accumulate(ftsHits, ftsWeight)

	out := make([]candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

// assemble expands each candidate into its surrounding region. Candidates
// whose chunk already landed in an earlier (higher-scoring) region are
// folded into it, so the maximum score per region is retained.
func (s *Service) assemble(ctx context.Context, candidates []candidate) ([]models.SearchResult, error) {
	pageChunks := make(map[int64][]models.Document)
	pageMeta := make(map[int64]*models.Page)
	claimed := make(map[int64]bool)

	var results []models.SearchResult
	for _, c := range candidates {
		if claimed[c.ChunkID] {
			continue
		}

		chunks, ok := pageChunks[c.PageID]
		if !ok {
			_, page, err := s.store.GetChunkByID(ctx, c.ChunkID)
			if err != nil {
				return nil, err
			}
			chunks, err = s.store.GetChunksByPage(ctx, c.PageID)
			if err != nil {
				return nil, err
			}
			pageChunks[c.PageID] = chunks
			pageMeta[c.PageID] = page
		}

		match := findChunk(chunks, c.ChunkID)
		if match < 0 {
			continue
		}

		region := buildRegion(chunks, match)
		for _, idx := range region.members {
			claimed[chunks[idx].ID] = true
		}

		page := pageMeta[c.PageID]
		results = append(results, models.SearchResult{
			URL:     page.URL,
			Title:   page.Title,
			Path:    chunks[match].Metadata.Path,
			Content: region.content,
			Score:   c.Score,
		})
	}
	return results, nil
}

func findChunk(chunks []models.Document, chunkID int64) int {
	for i := range chunks {
		if chunks[i].ID == chunkID {
			return i
		}
	}
	return -1
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " / "
		}
		out += p
	}
	return out
}
