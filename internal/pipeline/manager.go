package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/fetcher"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

// Manager owns the in-memory job table and the bounded worker pool. Every
// status transition is written through to the version row and emitted as a
// JOB_STATUS_CHANGE event, exactly once. Jobs targeting the same
// (library, normalized version) never run concurrently.
type Manager struct {
	store  interfaces.DocumentStore
	worker *Worker
	events interfaces.EventService
	config common.PipelineConfig
	logger arbor.ILogger

	mu      sync.Mutex
	jobs    map[string]*jobEntry
	pending []string
	active  map[string]string // lock key -> running job id
	running int

	wake   chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

var _ interfaces.PipelineManager = (*Manager)(nil)

type jobEntry struct {
	job    *models.Job
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(store interfaces.DocumentStore, worker *Worker, events interfaces.EventService, config common.PipelineConfig, logger arbor.ILogger) *Manager {
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	return &Manager{
		store:  store,
		worker: worker,
		events: events,
		config: config,
		logger: logger,
		jobs:   make(map[string]*jobEntry),
		active: make(map[string]string),
		wake:   make(chan struct{}, 1),
	}
}

func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if err := m.recover(ctx); err != nil {
		return fmt.Errorf("job recovery failed: %w", err)
	}

	m.wg.Add(1)
	go m.dispatchLoop()
	m.logger.Info().Int("concurrency", m.config.Concurrency).Msg("Pipeline manager started")
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recover handles versions left non-terminal by a previous process. Queued
// versions are always re-enqueued; running ones are re-enqueued only when
// recovery is enabled, otherwise marked failed as interrupted.
func (m *Manager) recover(ctx context.Context) error {
	interrupted, err := m.store.GetVersionsByStatus(ctx,
		models.VersionStatusRunning, models.VersionStatusUpdating)
	if err != nil {
		return err
	}
	for _, ref := range interrupted {
		if m.config.RecoverJobs {
			if m.requeue(ctx, ref) {
				continue
			}
		}
		msg := "interrupted"
		if err := m.store.UpdateVersionStatus(ctx, ref.Library, ref.Version, models.VersionStatusFailed, &msg); err != nil {
			return err
		}
	}

	queued, err := m.store.GetVersionsByStatus(ctx, models.VersionStatusQueued)
	if err != nil {
		return err
	}
	for _, ref := range queued {
		if !m.requeue(ctx, ref) {
			msg := "interrupted"
			if err := m.store.UpdateVersionStatus(ctx, ref.Library, ref.Version, models.VersionStatusFailed, &msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) requeue(ctx context.Context, ref models.VersionRef) bool {
	opts, err := m.store.GetScraperOptions(ctx, ref.Library, ref.Version)
	if err != nil || opts == nil {
		m.logger.Warn().Str("library", ref.Library).Str("version", ref.VersionName()).
			Msg("Cannot requeue version without stored scraper options")
		return false
	}
	if _, err := m.EnqueueJob(ctx, *opts); err != nil {
		m.logger.Warn().Err(err).Str("library", ref.Library).Msg("Failed to requeue job")
		return false
	}
	m.logger.Info().Str("library", ref.Library).Str("version", ref.VersionName()).Msg("Requeued interrupted job")
	return true
}

func (m *Manager) EnqueueJob(ctx context.Context, opts models.ScraperOptions) (string, error) {
	if opts.URL == "" {
		return "", fmt.Errorf("scrape job requires a url")
	}
	if opts.Library == "" {
		return "", fmt.Errorf("scrape job requires a library")
	}
	opts = opts.WithDefaults()

	version := models.NormalizeVersionName(opts.Version)
	optsJSON, err := opts.ToJSON()
	if err != nil {
		return "", err
	}
	if err := m.store.StoreScraperOptions(ctx, opts.Library, version, opts.URL, optsJSON); err != nil {
		return "", fmt.Errorf("failed to persist scraper options: %w", err)
	}

	job := &models.Job{
		ID:        common.NewJobID(),
		Library:   opts.Library,
		Version:   opts.Version,
		Status:    models.JobStatusQueued,
		Options:   opts,
		CreatedAt: time.Now().UTC(),
	}
	entry := &jobEntry{job: job, done: make(chan struct{})}

	m.mu.Lock()
	m.jobs[job.ID] = entry
	m.pending = append(m.pending, job.ID)
	m.mu.Unlock()

	if err := m.persistStatus(ctx, job); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist queued status")
	}
	m.emitStatus(ctx, job)
	m.events.Publish(ctx, models.Event{Type: models.EventLibraryChange})

	m.signal()
	m.logger.Info().Str("job_id", job.ID).Str("library", opts.Library).Str("version", opts.Version).Msg("Job enqueued")
	return job.ID, nil
}

// EnqueueRefresh re-runs an indexed version with its stored options, seeding
// the work queue from the existing pages so unchanged content short-circuits
// on etags.
func (m *Manager) EnqueueRefresh(ctx context.Context, library, version string) (string, error) {
	normalized := models.NormalizeVersionName(version)

	opts, err := m.store.GetScraperOptions(ctx, library, normalized)
	if err != nil {
		return "", fmt.Errorf("failed to load scraper options: %w", err)
	}
	if opts == nil {
		return "", fmt.Errorf("no stored scraper options for %s@%s", library, version)
	}

	pages, err := m.store.GetPagesByVersion(ctx, library, normalized)
	if err != nil {
		return "", err
	}

	queue := make([]models.QueueItem, 0, len(pages))
	for _, p := range pages {
		p := p
		queue = append(queue, models.QueueItem{URL: p.URL, Depth: p.Depth, PageID: &p.ID, Etag: p.Etag})
	}

	refreshOpts := *opts
	refreshOpts.IsRefresh = true
	refreshOpts.InitialQueue = queue

	return m.EnqueueJob(ctx, refreshOpts)
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return entry.job.Clone(), nil
}

func (m *Manager) GetJobs(ctx context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]*models.Job, 0, len(m.jobs))
	for _, entry := range m.jobs {
		jobs = append(jobs, entry.job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// CancelJob requests cancellation. A queued job cancels on the spot; a
// running one moves to cancelling and settles when its worker notices.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	entry, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return ErrJobNotFound
	}
	job := entry.job

	if job.Status.IsTerminal() {
		m.mu.Unlock()
		return nil
	}

	if job.Status == models.JobStatusQueued {
		for i, id := range m.pending {
			if id == jobID {
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				break
			}
		}
		m.transitionLocked(job, models.JobStatusCancelled, "")
		close(entry.done)
		m.mu.Unlock()
		m.persistAndEmit(ctx, job)
		return nil
	}

	if job.Status == models.JobStatusRunning {
		m.transitionLocked(job, models.JobStatusCancelling, "")
		cancel := entry.cancel
		m.mu.Unlock()
		m.persistAndEmit(ctx, job)
		if cancel != nil {
			cancel()
		}
		return nil
	}

	m.mu.Unlock()
	return nil
}

func (m *Manager) ClearCompletedJobs(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared := 0
	for id, entry := range m.jobs {
		if entry.job.Status.IsTerminal() {
			delete(m.jobs, id)
			cleared++
		}
	}
	return cleared
}

func (m *Manager) WaitForJobCompletion(ctx context.Context, jobID string) (*models.Job, error) {
	m.mu.Lock()
	entry, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrJobNotFound
	}

	select {
	case <-entry.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	job := entry.job.Clone()
	m.mu.Unlock()

	if job.Status == models.JobStatusFailed {
		return job, fmt.Errorf("job failed: %s", job.Error)
	}
	return job, nil
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) dispatchLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		}
		m.dispatch()
	}
}

// dispatch starts as many pending jobs as slots and lock keys allow. FIFO
// order is preserved; a job blocked on its lock key does not block jobs
// behind it targeting other versions.
func (m *Manager) dispatch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.running < m.config.Concurrency {
		idx := -1
		for i, id := range m.pending {
			key := lockKey(m.jobs[id].job)
			if _, busy := m.active[key]; !busy {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}

		id := m.pending[idx]
		m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
		entry := m.jobs[id]
		key := lockKey(entry.job)
		m.active[key] = id
		m.running++

		jobCtx, cancel := context.WithCancel(m.ctx)
		entry.cancel = cancel

		m.wg.Add(1)
		go m.runJob(jobCtx, entry, key)
	}
}

func (m *Manager) runJob(ctx context.Context, entry *jobEntry, key string) {
	defer m.wg.Done()
	job := entry.job

	m.mu.Lock()
	now := time.Now().UTC()
	job.StartedAt = &now
	m.transitionLocked(job, models.JobStatusRunning, "")
	m.mu.Unlock()
	m.persistAndEmit(context.Background(), job)

	err := m.worker.ExecuteJob(ctx, job, Callbacks{
		OnProgress: m.onProgress,
		OnError:    m.onJobError,
	})

	m.mu.Lock()
	completed := time.Now().UTC()
	job.CompletedAt = &completed

	var cancelErr *fetcher.CancellationError
	switch {
	case errors.As(err, &cancelErr), job.Status == models.JobStatusCancelling:
		m.transitionLocked(job, models.JobStatusCancelled, "")
	case err != nil:
		m.transitionLocked(job, models.JobStatusFailed, err.Error())
	default:
		m.transitionLocked(job, models.JobStatusCompleted, "")
	}

	delete(m.active, key)
	m.running--
	close(entry.done)
	m.mu.Unlock()

	m.persistAndEmit(context.Background(), job)
	m.events.Publish(context.Background(), models.Event{Type: models.EventLibraryChange})
	m.signal()
}

// transitionLocked mutates the in-memory status; callers must hold mu and
// follow up with persistAndEmit outside the lock.
func (m *Manager) transitionLocked(job *models.Job, status models.JobStatus, errMsg string) {
	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}
}

func (m *Manager) persistAndEmit(ctx context.Context, job *models.Job) {
	if err := m.persistStatus(ctx, job); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist job status")
	}
	m.emitStatus(ctx, job)
}

func (m *Manager) persistStatus(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	status := job.Status
	errMsg := job.Error
	m.mu.Unlock()

	var msgPtr *string
	if errMsg != "" && status == models.JobStatusFailed {
		msgPtr = &errMsg
	}
	version := models.NormalizeVersionName(job.Version)
	return m.store.UpdateVersionStatus(ctx, job.Library, version,
		status.VersionStatus(job.Options.IsRefresh), msgPtr)
}

func (m *Manager) emitStatus(ctx context.Context, job *models.Job) {
	m.mu.Lock()
	payload := models.JobStatusChangePayload{
		ID:      job.ID,
		Library: job.Library,
		Version: job.Version,
		Status:  job.Status,
		Error:   job.Error,
	}
	m.mu.Unlock()
	m.events.Publish(ctx, models.Event{Type: models.EventJobStatusChange, Payload: payload})
}

func (m *Manager) onProgress(job *models.Job, ev models.ProgressEvent) {
	m.mu.Lock()
	job.Progress = ev
	snapshot := job.Clone()
	m.mu.Unlock()

	ctx := context.Background()
	version := models.NormalizeVersionName(job.Version)
	if err := m.store.UpdateVersionProgress(ctx, job.Library, version, ev.PagesScraped, ev.TotalPages); err != nil {
		m.logger.Debug().Err(err).Str("job_id", job.ID).Msg("Failed to persist progress")
	}

	m.events.Publish(ctx, models.Event{
		Type:    models.EventJobProgress,
		Payload: models.JobProgressPayload{Job: snapshot, Progress: ev},
	})
}

func (m *Manager) onJobError(job *models.Job, err error, result *models.ScrapeResult) {
	url := ""
	if result != nil {
		url = result.URL
	}
	m.logger.Warn().Err(err).Str("job_id", job.ID).Str("url", url).Msg("Job error")
}

func lockKey(job *models.Job) string {
	version := ""
	if v := models.NormalizeVersionName(job.Version); v != nil {
		version = *v
	}
	return models.NormalizeLibraryName(job.Library) + "@" + version
}
