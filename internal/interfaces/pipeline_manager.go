package interfaces

import (
	"context"

	"github.com/ternarybob/lectern/internal/models"
)

// PipelineManager owns the job lifecycle: enqueueing, concurrency limits,
// cancellation and progress write-through. Implementations exist for the
// in-process worker pool and for a remote daemon proxy.
type PipelineManager interface {
	// EnqueueJob validates options, persists the queued state and returns
	// the new job id. At most one active job per (library, version).
	EnqueueJob(ctx context.Context, opts models.ScraperOptions) (string, error)

	// EnqueueRefresh re-runs a previously indexed version using its stored
	// scraper options, seeding the queue from existing pages.
	EnqueueRefresh(ctx context.Context, library, version string) (string, error)

	// GetJob returns a snapshot of a job, or nil if unknown
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// GetJobs returns snapshots of all known jobs, newest first
	GetJobs(ctx context.Context) ([]*models.Job, error)

	// CancelJob requests cancellation. Queued jobs cancel immediately;
	// running jobs move to cancelling until the worker acknowledges.
	CancelJob(ctx context.Context, jobID string) error

	// ClearCompletedJobs drops terminal jobs from the in-memory table
	ClearCompletedJobs(ctx context.Context) int

	// WaitForJobCompletion blocks until the job reaches a terminal status
	// or ctx is done, and returns the final snapshot.
	WaitForJobCompletion(ctx context.Context, jobID string) (*models.Job, error)

	// Start begins worker processing, including queued-job recovery
	Start(ctx context.Context) error

	// Stop drains workers and releases resources
	Stop(ctx context.Context) error
}
