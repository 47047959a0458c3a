package models

// VersionRef identifies a (library, version) pair without loading the rows.
// Version is nil for the unversioned entry.
type VersionRef struct {
	Library string  `json:"library"`
	Version *string `json:"version"`
}

// VersionName returns the referenced version's name or "".
func (r VersionRef) VersionName() string {
	if r.Version == nil {
		return ""
	}
	return *r.Version
}

// SearchHit is a ranked chunk returned by one retrieval leg. Rank is
// 1-based within the leg; Score carries the leg-native score (bm25 or
// cosine similarity) for diagnostics only.
type SearchHit struct {
	ChunkID int64   `json:"chunk_id"`
	PageID  int64   `json:"page_id"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
}

// SearchResult is one merged, context-expanded result.
type SearchResult struct {
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	Path    []string `json:"path,omitempty"`
	Content string   `json:"content"`
	Score   float64  `json:"score"`
}
