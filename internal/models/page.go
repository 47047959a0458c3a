package models

import "time"

// Page is a unique URL within a version. The (etag, last_modified) pair is
// the change-detection token used by refresh jobs; for file sources the etag
// is derived from the file's mtime.
type Page struct {
	ID           int64     `json:"id"`
	VersionID    int64     `json:"version_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Etag         *string   `json:"etag,omitempty"`
	LastModified *string   `json:"last_modified,omitempty"`
	ContentType  string    `json:"content_type"`
	Depth        int       `json:"depth"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Document is a stored chunk row. All chunks for a page are replaced
// atomically when the page is re-processed; SortOrder is dense per page.
type Document struct {
	ID        int64         `json:"id"`
	PageID    int64         `json:"page_id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	SortOrder int           `json:"sort_order"`
	Embedding []float32     `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ChunkMetadata is persisted as JSON alongside each document row.
type ChunkMetadata struct {
	Level int      `json:"level"`
	Path  []string `json:"path"`
	Types []string `json:"types"`
}
