package models

import (
	"encoding/json"
	"time"
)

// JobStatus represents the state of a pipeline job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusRunning    JobStatus = "running"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the job has finished (successfully or not).
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// VersionStatus maps a job status onto the persisted version status.
func (s JobStatus) VersionStatus(isRefresh bool) VersionStatus {
	switch s {
	case JobStatusQueued:
		return VersionStatusQueued
	case JobStatusRunning:
		if isRefresh {
			return VersionStatusUpdating
		}
		return VersionStatusRunning
	case JobStatusCancelling:
		if isRefresh {
			return VersionStatusUpdating
		}
		return VersionStatusRunning
	case JobStatusCompleted:
		return VersionStatusCompleted
	case JobStatusFailed:
		return VersionStatusFailed
	case JobStatusCancelled:
		return VersionStatusCancelled
	}
	return VersionStatusNotIndexed
}

// ScrapeMode selects the fetch engine for a job.
type ScrapeMode string

const (
	ScrapeModeFetch   ScrapeMode = "fetch"
	ScrapeModeBrowser ScrapeMode = "playwright"
	ScrapeModeAuto    ScrapeMode = "auto"
)

// ScopeMode bounds link-following relative to the root URL.
type ScopeMode string

const (
	ScopeSubpages ScopeMode = "subpages"
	ScopeHostname ScopeMode = "hostname"
	ScopeDomain   ScopeMode = "domain"
)

// QueueItem seeds the scrape work queue. Refresh jobs preload one item per
// existing page, carrying the page id and stored etag for conditional
// requests.
type QueueItem struct {
	URL    string  `json:"url"`
	Depth  int     `json:"depth"`
	PageID *int64  `json:"page_id,omitempty"`
	Etag   *string `json:"etag,omitempty"`
}

// ScraperOptions is the job input contract. Patterns wrapped in /.../ are
// regular expressions; anything else is a glob. Exclude takes precedence.
type ScraperOptions struct {
	URL             string            `json:"url"`
	Library         string            `json:"library"`
	Version         string            `json:"version,omitempty"`
	MaxPages        int               `json:"max_pages,omitempty"`
	MaxDepth        int               `json:"max_depth,omitempty"`
	MaxConcurrency  int               `json:"max_concurrency,omitempty"`
	Scope           ScopeMode         `json:"scope,omitempty"`
	FollowRedirects *bool             `json:"follow_redirects,omitempty"`
	ScrapeMode      ScrapeMode        `json:"scrape_mode,omitempty"`
	IncludePatterns []string          `json:"include_patterns,omitempty"`
	ExcludePatterns []string          `json:"exclude_patterns,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	InitialQueue    []QueueItem       `json:"initial_queue,omitempty"`
	IsRefresh       bool              `json:"is_refresh,omitempty"`
	IgnoreErrors    *bool             `json:"ignore_errors,omitempty"`
}

// WithDefaults returns a copy with unset fields replaced by their defaults.
func (o ScraperOptions) WithDefaults() ScraperOptions {
	out := o
	if out.MaxPages <= 0 {
		out.MaxPages = 1000
	}
	if out.MaxDepth < 0 {
		out.MaxDepth = 0
	} else if out.MaxDepth == 0 {
		out.MaxDepth = 3
	}
	if out.MaxConcurrency <= 0 {
		out.MaxConcurrency = 3
	}
	if out.Scope == "" {
		out.Scope = ScopeSubpages
	}
	if out.ScrapeMode == "" {
		out.ScrapeMode = ScrapeModeAuto
	}
	if out.FollowRedirects == nil {
		t := true
		out.FollowRedirects = &t
	}
	if out.IgnoreErrors == nil {
		t := true
		out.IgnoreErrors = &t
	}
	return out
}

// ToJSON serializes ScraperOptions for database storage
func (o *ScraperOptions) ToJSON() (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ScraperOptionsFromJSON deserializes ScraperOptions from JSON
func ScraperOptionsFromJSON(data string) (*ScraperOptions, error) {
	var opts ScraperOptions
	if err := json.Unmarshal([]byte(data), &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// ScrapeResult is the processed output for one URL, ready for storage.
type ScrapeResult struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	ContentType  string   `json:"content_type"`
	TextContent  string   `json:"text_content"`
	Links        []string `json:"links"`
	Errors       []string `json:"errors,omitempty"`
	Chunks       []Chunk  `json:"chunks"`
	Etag         *string  `json:"etag,omitempty"`
	LastModified *string  `json:"last_modified,omitempty"`
}

// ProgressEvent reports per-URL progress from the scrape strategy. A nil
// Result with a PageID means the page was unchanged (304); Deleted with a
// PageID means the source returned 404 for an existing page.
type ProgressEvent struct {
	PagesScraped    int           `json:"pages_scraped"`
	TotalPages      int           `json:"total_pages"`
	TotalDiscovered int           `json:"total_discovered"`
	CurrentURL      string        `json:"current_url"`
	Depth           int           `json:"depth"`
	MaxDepth        int           `json:"max_depth"`
	Result          *ScrapeResult `json:"result,omitempty"`
	PageID          *int64        `json:"page_id,omitempty"`
	Deleted         bool          `json:"deleted,omitempty"`
}

// Job is the in-memory pipeline job record owned by the manager.
type Job struct {
	ID             string         `json:"id"`
	Library        string         `json:"library"`
	Version        string         `json:"version"`
	Status         JobStatus      `json:"status"`
	Options        ScraperOptions `json:"options"`
	Progress       ProgressEvent  `json:"progress"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// Clone returns a shallow copy safe to hand to event consumers.
func (j *Job) Clone() *Job {
	cp := *j
	return &cp
}
