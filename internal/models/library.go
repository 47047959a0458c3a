package models

import (
	"strings"
	"time"
)

// Library groups indexed documentation under a case-insensitive name.
// The display name is stored verbatim; comparisons always go through
// NormalizeLibraryName.
type Library struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeLibraryName lowercases and trims a library name for comparison
// and unique-constraint purposes.
func NormalizeLibraryName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// VersionStatus enumerates the lifecycle states of an indexed version.
type VersionStatus string

const (
	VersionStatusNotIndexed VersionStatus = "not_indexed"
	VersionStatusQueued     VersionStatus = "queued"
	VersionStatusRunning    VersionStatus = "running"
	VersionStatusCompleted  VersionStatus = "completed"
	VersionStatusFailed     VersionStatus = "failed"
	VersionStatusCancelled  VersionStatus = "cancelled"
	VersionStatusUpdating   VersionStatus = "updating"
)

// IsTerminal reports whether the status is a terminal state for a run.
func (s VersionStatus) IsTerminal() bool {
	switch s {
	case VersionStatusCompleted, VersionStatusFailed, VersionStatusCancelled:
		return true
	}
	return false
}

// Version is one indexed version of a library. Name == nil denotes the
// single "unversioned" entry a library may carry; it sorts as "latest".
type Version struct {
	ID               int64         `json:"id"`
	LibraryID        int64         `json:"library_id"`
	Name             *string       `json:"name"`
	Status           VersionStatus `json:"status"`
	ProgressPages    int           `json:"progress_pages"`
	ProgressMaxPages int           `json:"progress_max_pages"`
	ErrorMessage     *string       `json:"error_message,omitempty"`
	SourceURL        string        `json:"source_url,omitempty"`
	ScraperOptions   string        `json:"scraper_options,omitempty"` // JSON snapshot
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// VersionName returns the version's name or "" for the unversioned entry.
func (v *Version) VersionName() string {
	if v.Name == nil {
		return ""
	}
	return *v.Name
}

// NormalizeVersionName maps the empty string to the unversioned sentinel
// (nil) and lowercases concrete names. Callers at the API boundary use this
// so storage only ever sees nil as "unversioned".
func NormalizeVersionName(name string) *string {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// LibraryInfo summarizes a library and its versions for listing surfaces.
type LibraryInfo struct {
	Library  Library   `json:"library"`
	Versions []Version `json:"versions"`
}
