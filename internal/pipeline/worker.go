package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/fetcher"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/storage/sqlite"
)

// Callbacks receive worker-side job events. The worker never mutates the job
// record itself; the manager owns all state.
type Callbacks struct {
	OnProgress func(job *models.Job, event models.ProgressEvent)
	OnError    func(job *models.Job, err error, result *models.ScrapeResult)
}

// Worker executes a single job: it drives the scrape strategy and applies
// each progress event to the store in strict order.
type Worker struct {
	store    interfaces.DocumentStore
	strategy *Strategy
	logger   arbor.ILogger
}

func NewWorker(store interfaces.DocumentStore, strategy *Strategy, logger arbor.ILogger) *Worker {
	return &Worker{store: store, strategy: strategy, logger: logger}
}

// ExecuteJob runs the job to completion. Store failures on chunk insert are
// reported and skipped; failures deleting a page during refresh are fatal.
// A cancelled context surfaces as a CancellationError.
func (w *Worker) ExecuteJob(ctx context.Context, job *models.Job, cb Callbacks) error {
	version := models.NormalizeVersionName(job.Version)

	if !job.Options.IsRefresh {
		err := w.store.RemoveAllDocuments(ctx, job.Library, version)
		if err != nil && !errors.Is(err, sqlite.ErrVersionNotFound) && !errors.Is(err, sqlite.ErrLibraryNotFound) {
			return fmt.Errorf("failed to clear existing documents: %w", err)
		}
	}

	err := w.strategy.Run(ctx, job.Options, func(ev models.ProgressEvent) error {
		if ctx.Err() != nil {
			return &fetcher.CancellationError{Reason: "Job cancelled during scraping progress"}
		}

		switch {
		case ev.Deleted && ev.PageID != nil:
			if err := w.store.DeletePage(ctx, *ev.PageID); err != nil {
				err = fmt.Errorf("failed to delete page %d (%s): %w", *ev.PageID, ev.CurrentURL, err)
				cb.OnError(job, err, nil)
				return err
			}

		case ev.Result == nil:
			// not modified, or a skipped error page

		default:
			if ev.PageID != nil {
				if err := w.store.DeletePage(ctx, *ev.PageID); err != nil && !errors.Is(err, sqlite.ErrPageNotFound) {
					err = fmt.Errorf("failed to replace page %d (%s): %w", *ev.PageID, ev.CurrentURL, err)
					cb.OnError(job, err, nil)
					return err
				}
			}
			if err := w.store.AddScrapeResult(ctx, job.Library, version, ev.Depth, ev.Result); err != nil {
				// non-fatal: report and keep scraping
				cb.OnError(job, fmt.Errorf("failed to store %s: %w", ev.CurrentURL, err), ev.Result)
			}
		}

		cb.OnProgress(job, ev)
		return nil
	})
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return &fetcher.CancellationError{Reason: "Job cancelled"}
	}
	return nil
}
