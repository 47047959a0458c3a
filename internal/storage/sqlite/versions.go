package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/ternarybob/lectern/internal/models"
)

// UpdateVersionStatus writes a version's lifecycle status. The library and
// version rows are created on demand so enqueueing a brand-new library can
// mark it queued before any page lands. Moving to running stamps started_at
// and clears the previous error.
func (s *Store) UpdateVersionStatus(ctx context.Context, library string, version *string, status models.VersionStatus, errorMessage *string) error {
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

	if status == models.VersionStatusRunning || status == models.VersionStatusUpdating {
		_, err = tx.ExecContext(ctx, `
			UPDATE versions SET status = ?, error_message = NULL,
				started_at = strftime('%s', 'now'), updated_at = strftime('%s', 'now')
			WHERE id = ?`, string(status), verID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE versions SET status = ?, error_message = ?, updated_at = strftime('%s', 'now')
			WHERE id = ?`, string(status), errorMessage, verID)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) UpdateVersionProgress(ctx context.Context, library string, version *string, pages, maxPages int) error {
	verID, err := s.versionID(ctx, library, version)
	if err != nil {
		return err
	}
	_, err = s.db.DB().ExecContext(ctx, `
		UPDATE versions SET progress_pages = ?, progress_max_pages = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?`, pages, maxPages, verID)
	return err
}

// StoreScraperOptions snapshots the job options and source URL on the
// version row so interrupted and scheduled jobs can be re-run faithfully.
func (s *Store) StoreScraperOptions(ctx context.Context, library string, version *string, sourceURL string, optionsJSON string) error {
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

	_, err = tx.ExecContext(ctx, `
		UPDATE versions SET source_url = ?, scraper_options = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?`, sourceURL, optionsJSON, verID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetScraperOptions(ctx context.Context, library string, version *string) (*models.ScraperOptions, error) {
	verID, err := s.versionID(ctx, library, version)
	if err != nil {
		return nil, err
	}

	var raw string
	if err := s.db.DB().QueryRowContext(ctx, "SELECT scraper_options FROM versions WHERE id = ?", verID).Scan(&raw); err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	opts, err := models.ScraperOptionsFromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt scraper options for %s: %w", library, err)
	}
	return opts, nil
}

func (s *Store) GetVersionsByStatus(ctx context.Context, statuses ...models.VersionStatus) ([]models.VersionRef, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	query := fmt.Sprintf(`
		SELECT l.name, v.name FROM versions v
		JOIN libraries l ON l.id = v.library_id
		WHERE v.status IN (%s)
		ORDER BY v.id`, strings.Join(placeholders, ", "))

	return s.queryVersionRefs(ctx, query, args...)
}

func (s *Store) FindVersionsBySourceUrl(ctx context.Context, url string) ([]models.VersionRef, error) {
	return s.queryVersionRefs(ctx, `
		SELECT l.name, v.name FROM versions v
		JOIN libraries l ON l.id = v.library_id
		WHERE v.source_url = ?
		ORDER BY v.id`, url)
}

func (s *Store) queryVersionRefs(ctx context.Context, query string, args ...interface{}) ([]models.VersionRef, error) {
	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []models.VersionRef
	for rows.Next() {
		var ref models.VersionRef
		if err := rows.Scan(&ref.Library, &ref.Version); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListLibraries returns every library with its versions, newest library first.
func (s *Store) ListLibraries(ctx context.Context) ([]models.LibraryInfo, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT l.id, l.display_name, l.created_at,
			v.id, v.library_id, v.name, v.status, v.progress_pages, v.progress_max_pages,
			v.error_message, v.source_url, v.scraper_options, v.started_at, v.created_at, v.updated_at
		FROM libraries l
		LEFT JOIN versions v ON v.library_id = l.id
		ORDER BY l.id DESC, v.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		infos   []models.LibraryInfo
		current *models.LibraryInfo
	)
	for rows.Next() {
		var (
			lib        models.Library
			libCreated int64

			verID        sql.NullInt64
			verLibID     sql.NullInt64
			verName      sql.NullString
			verStatus    sql.NullString
			verPages     sql.NullInt64
			verMaxPages  sql.NullInt64
			verError     sql.NullString
			verSourceURL sql.NullString
			verOptions   sql.NullString
			verStarted   sql.NullInt64
			verCreated   sql.NullInt64
			verUpdated   sql.NullInt64
		)
		err := rows.Scan(&lib.ID, &lib.Name, &libCreated,
			&verID, &verLibID, &verName, &verStatus, &verPages, &verMaxPages,
			&verError, &verSourceURL, &verOptions, &verStarted, &verCreated, &verUpdated)
		if err != nil {
			return nil, err
		}
		lib.CreatedAt = time.Unix(libCreated, 0).UTC()

		if current == nil || current.Library.ID != lib.ID {
			infos = append(infos, models.LibraryInfo{Library: lib})
			current = &infos[len(infos)-1]
		}

		if !verID.Valid {
			continue
		}
		v := models.Version{
			ID:               verID.Int64,
			LibraryID:        verLibID.Int64,
			Status:           models.VersionStatus(verStatus.String),
			ProgressPages:    int(verPages.Int64),
			ProgressMaxPages: int(verMaxPages.Int64),
			SourceURL:        verSourceURL.String,
			ScraperOptions:   verOptions.String,
			CreatedAt:        time.Unix(verCreated.Int64, 0).UTC(),
			UpdatedAt:        time.Unix(verUpdated.Int64, 0).UTC(),
		}
		if verName.Valid {
			name := verName.String
			v.Name = &name
		}
		if verError.Valid {
			msg := verError.String
			v.ErrorMessage = &msg
		}
		if verStarted.Valid {
			t := time.Unix(verStarted.Int64, 0).UTC()
			v.StartedAt = &t
		}
		current.Versions = append(current.Versions, v)
	}
	return infos, rows.Err()
}

// FindBestVersion resolves a requested version against the indexed versions
// of a library. Resolution order: exact name match, then semver constraint
// (X-ranges such as "3.x" included), then the unversioned entry as fallback.
// An empty or "latest" request picks the highest semver version.
func (s *Store) FindBestVersion(ctx context.Context, library string, requested string) (*string, error) {
	norm := models.NormalizeLibraryName(library)

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT v.name FROM versions v
		JOIN libraries l ON l.id = v.library_id
		WHERE l.name = ?
		ORDER BY v.created_at DESC, v.id DESC`, norm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		names          []string
		hasUnversioned bool
	)
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name.Valid {
			names = append(names, name.String)
		} else {
			hasUnversioned = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 && !hasUnversioned {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, library)
	}

	requested = strings.ToLower(strings.TrimSpace(requested))

	if requested != "" && requested != "latest" {
		for _, name := range names {
			if name == requested {
				match := name
				return &match, nil
			}
		}
		if constraint, err := semver.NewConstraint(requested); err == nil {
			if best := bestSatisfying(names, constraint); best != nil {
				return best, nil
			}
		}
		if hasUnversioned {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s@%s", ErrVersionNotFound, library, requested)
	}

	if best := bestSatisfying(names, nil); best != nil {
		return best, nil
	}
	if hasUnversioned {
		return nil, nil
	}
	// No parseable semver names and no unversioned entry; names are ordered
	// newest first, so take the most recently indexed one.
	match := names[0]
	return &match, nil
}

// bestSatisfying returns the highest semver name, optionally filtered by a
// constraint. Names that do not parse as semver are skipped.
func bestSatisfying(names []string, constraint *semver.Constraints) *string {
	var (
		bestName    string
		bestVersion *semver.Version
	)
	for _, name := range names {
		v, err := semver.NewVersion(name)
		if err != nil {
			continue
		}
		if constraint != nil && !constraint.Check(v) {
			continue
		}
		if bestVersion == nil || v.GreaterThan(bestVersion) {
			bestVersion = v
			bestName = name
		}
	}
	if bestVersion == nil {
		return nil
	}
	return &bestName
}
