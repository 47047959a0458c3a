package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

// fakeStore overrides just the surfaces the search service touches.
type fakeStore struct {
	interfaces.DocumentStore

	resolved   *string
	ftsHits    []models.SearchHit
	vectorHits []models.SearchHit
	pages      map[int64]*models.Page
	chunks     map[int64][]models.Document
}

func (f *fakeStore) FindBestVersion(ctx context.Context, library, requested string) (*string, error) {
	return f.resolved, nil
}

func (f *fakeStore) SearchFullText(ctx context.Context, library string, version *string, query string, limit int) ([]models.SearchHit, error) {
	if limit < len(f.ftsHits) {
		return f.ftsHits[:limit], nil
	}
	return f.ftsHits, nil
}

func (f *fakeStore) SearchVector(ctx context.Context, library string, version *string, embedding []float32, limit int) ([]models.SearchHit, error) {
	if limit < len(f.vectorHits) {
		return f.vectorHits[:limit], nil
	}
	return f.vectorHits, nil
}

func (f *fakeStore) GetChunksByPage(ctx context.Context, pageID int64) ([]models.Document, error) {
	return f.chunks[pageID], nil
}

func (f *fakeStore) GetChunkByID(ctx context.Context, chunkID int64) (*models.Document, *models.Page, error) {
	for pageID, docs := range f.chunks {
		for i := range docs {
			if docs[i].ID == chunkID {
				return &docs[i], f.pages[pageID], nil
			}
		}
	}
	return nil, nil, assert.AnError
}

type fixedEmbedder struct {
	vector    []float32
	available bool
}

func (e fixedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = e.vector
	}
	return out, nil
}
func (e fixedEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return e.vector, nil
}
func (e fixedEmbedder) ModelName() string { return "fixed" }
func (e fixedEmbedder) Dimension() int    { return len(e.vector) }
func (e fixedEmbedder) IsAvailable() bool { return e.available }

func testConfig() common.SearchConfig {
	return common.SearchConfig{
		VectorMultiplier: 10,
		FTSOverfetch:     2,
		RRFConstant:      60,
		VectorWeight:     1.0,
		FTSWeight:        1.0,
	}
}

func mdDoc(id, pageID int64, sortOrder int, content string, path ...string) models.Document {
	return models.Document{
		ID: id, PageID: pageID, Content: content, SortOrder: sortOrder,
		Metadata: models.ChunkMetadata{Level: len(path), Path: path, Types: []string{"markdown"}},
	}
}

func TestRRFMergeCombinesBothLegs(t *testing.T) {
	vector := []models.SearchHit{{ChunkID: 1, PageID: 1, Rank: 1}, {ChunkID: 2, PageID: 1, Rank: 2}}
	fts := []models.SearchHit{{ChunkID: 2, PageID: 1, Rank: 1}, {ChunkID: 3, PageID: 1, Rank: 2}}

	merged := rrfMerge(vector, fts, 60, 1.0, 1.0)
	require.Len(t, merged, 3)

	// chunk 2 appears in both legs and must outrank the single-leg hits
	assert.Equal(t, int64(2), merged[0].ChunkID)
	assert.InDelta(t, 1.0/62+1.0/61, merged[0].Score, 1e-12)
}

func TestRRFMergeTieBreaksByChunkID(t *testing.T) {
	// X: vector rank 1, fts rank 3. Y: vector rank 3, fts rank 1.
	// Equal weights make the scores identical; the lower id wins.
	vector := []models.SearchHit{
		{ChunkID: 40, PageID: 1, Rank: 1},
		{ChunkID: 7, PageID: 1, Rank: 3},
	}
	fts := []models.SearchHit{
		{ChunkID: 7, PageID: 1, Rank: 1},
		{ChunkID: 40, PageID: 1, Rank: 3},
	}

	merged := rrfMerge(vector, fts, 60, 1.0, 1.0)
	require.Len(t, merged, 2)
	assert.Equal(t, merged[0].Score, merged[1].Score)
	assert.Equal(t, int64(7), merged[0].ChunkID)
	assert.Equal(t, int64(40), merged[1].ChunkID)
}

func TestRRFMergeRespectsWeights(t *testing.T) {
	vector := []models.SearchHit{{ChunkID: 1, PageID: 1, Rank: 1}}
	fts := []models.SearchHit{{ChunkID: 2, PageID: 1, Rank: 1}}

	merged := rrfMerge(vector, fts, 60, 2.0, 1.0)
	require.Len(t, merged, 2)
	assert.Equal(t, int64(1), merged[0].ChunkID)
	assert.InDelta(t, 2.0/61, merged[0].Score, 1e-12)
	assert.InDelta(t, 1.0/61, merged[1].Score, 1e-12)
}

func TestSearchAssemblesBroadContext(t *testing.T) {
	heading := mdDoc(1, 1, 0, "# Install", "Install")
	heading.Metadata.Types = []string{"heading", "markdown"}

	store := &fakeStore{
		resolved: nil,
		ftsHits:  []models.SearchHit{{ChunkID: 3, PageID: 1, Rank: 1}},
		pages: map[int64]*models.Page{
			1: {ID: 1, URL: "https://docs/guide", Title: "Guide"},
		},
		chunks: map[int64][]models.Document{
			1: {
				heading,
				mdDoc(2, 1, 1, "intro paragraph", "Install"),
				mdDoc(3, 1, 2, "run the installer", "Install"),
				mdDoc(4, 1, 3, "post-install notes", "Install"),
			},
		},
	}

	svc := NewService(store, fixedEmbedder{}, testConfig(), arbor.NewLogger())
	results, err := svc.Search(context.Background(), "lib", "", "installer", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "https://docs/guide", r.URL)
	assert.Equal(t, "Guide", r.Title)
	assert.Equal(t, "Install", r.Path)
	assert.Equal(t, "# Install\n\nintro paragraph\n\nrun the installer\n\npost-install notes", r.Content)
}

func TestSearchAssemblesHierarchicalRegionForCode(t *testing.T) {
	codeDoc := func(id int64, sortOrder int, content string, path ...string) models.Document {
		return models.Document{
			ID: id, PageID: 1, Content: content, SortOrder: sortOrder,
			Metadata: models.ChunkMetadata{Level: len(path), Path: path, Types: []string{"code", "content"}},
		}
	}
	store := &fakeStore{
		ftsHits: []models.SearchHit{
			{ChunkID: 2, PageID: 1, Rank: 1},
			{ChunkID: 3, PageID: 1, Rank: 2},
		},
		pages: map[int64]*models.Page{1: {ID: 1, URL: "file:///svc.ts", Title: "svc.ts"}},
		chunks: map[int64][]models.Document{
			1: {
				codeDoc(1, 0, "class Svc {\n", "svc.ts", "Svc"),
				codeDoc(2, 1, "  a() { return 1; }\n", "svc.ts", "Svc", "a"),
				codeDoc(3, 2, "  b() { return 2; }\n", "svc.ts", "Svc", "b"),
				codeDoc(4, 3, "}\n", "svc.ts", "Svc"),
			},
		},
	}

	svc := NewService(store, fixedEmbedder{}, testConfig(), arbor.NewLogger())
	results, err := svc.Search(context.Background(), "lib", "", "return", 5)
	require.NoError(t, err)

	// both matches collapse into one region covering the whole file subtree
	require.Len(t, results, 1)
	assert.Equal(t, "class Svc {\n  a() { return 1; }\n  b() { return 2; }\n}\n", results[0].Content)
}

func TestSearchDegradesToFTSWhenEmbedderUnavailable(t *testing.T) {
	store := &fakeStore{
		ftsHits:    []models.SearchHit{{ChunkID: 1, PageID: 1, Rank: 1}},
		vectorHits: []models.SearchHit{{ChunkID: 9, PageID: 9, Rank: 1}},
		pages:      map[int64]*models.Page{1: {ID: 1, URL: "https://docs/a", Title: "A"}},
		chunks: map[int64][]models.Document{
			1: {mdDoc(1, 1, 0, "only chunk", "A")},
		},
	}

	svc := NewService(store, fixedEmbedder{available: false}, testConfig(), arbor.NewLogger())
	results, err := svc.Search(context.Background(), "lib", "", "anything", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "only chunk", results[0].Content)
}

func TestSearchUsesBothLegsWhenEmbedderAvailable(t *testing.T) {
	store := &fakeStore{
		ftsHits:    []models.SearchHit{{ChunkID: 1, PageID: 1, Rank: 1}},
		vectorHits: []models.SearchHit{{ChunkID: 2, PageID: 2, Rank: 1}},
		pages: map[int64]*models.Page{
			1: {ID: 1, URL: "https://docs/a", Title: "A"},
			2: {ID: 2, URL: "https://docs/b", Title: "B"},
		},
		chunks: map[int64][]models.Document{
			1: {mdDoc(1, 1, 0, "fts chunk", "A")},
			2: {mdDoc(2, 2, 0, "vector chunk", "B")},
		},
	}

	svc := NewService(store, fixedEmbedder{vector: []float32{1, 0}, available: true}, testConfig(), arbor.NewLogger())
	results, err := svc.Search(context.Background(), "lib", "", "anything", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// same rank in each leg, tie broken by chunk id
	assert.Equal(t, "fts chunk", results[0].Content)
	assert.Equal(t, "vector chunk", results[1].Content)
}

func TestSearchLimitAppliesAfterFusion(t *testing.T) {
	store := &fakeStore{
		ftsHits: []models.SearchHit{
			{ChunkID: 10, PageID: 1, Rank: 1},
			{ChunkID: 20, PageID: 2, Rank: 2},
		},
		pages: map[int64]*models.Page{
			1: {ID: 1, URL: "https://docs/a", Title: "A"},
			2: {ID: 2, URL: "https://docs/b", Title: "B"},
		},
		chunks: map[int64][]models.Document{
			1: {mdDoc(10, 1, 0, "first", "A")},
			2: {mdDoc(20, 2, 0, "second", "B")},
		},
	}

	svc := NewService(store, fixedEmbedder{}, testConfig(), arbor.NewLogger())
	results, err := svc.Search(context.Background(), "lib", "", "q", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "first", results[0].Content)
}
