package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/pipeline"
)

// Manager proxies the pipeline API of a remote lectern daemon. Job state
// lives on the daemon; events stream back over its websocket and are
// replayed on the local bus, which is how WaitForJobCompletion observes
// terminal transitions.
type Manager struct {
	baseURL string
	client  *http.Client
	events  interfaces.EventService
	logger  arbor.ILogger
	proxy   *eventProxy
}

var _ interfaces.PipelineManager = (*Manager)(nil)

func NewManager(baseURL string, events interfaces.EventService, logger arbor.ILogger) *Manager {
	return &Manager{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		events:  events,
		logger:  logger,
	}
}

// Start verifies the daemon is reachable and begins streaming its events.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.do(ctx, http.MethodGet, "/api/health", nil, nil); err != nil {
		return fmt.Errorf("remote pipeline manager unreachable at %s: %w", m.baseURL, err)
	}

	proxy, err := newEventProxy(m.baseURL, m.events, m.logger)
	if err != nil {
		return err
	}
	m.proxy = proxy
	m.proxy.Start()

	m.logger.Info().Str("url", m.baseURL).Msg("Connected to remote pipeline manager")
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	if m.proxy != nil {
		m.proxy.Stop()
		m.proxy = nil
	}
	return nil
}

func (m *Manager) EnqueueJob(ctx context.Context, opts models.ScraperOptions) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := m.do(ctx, http.MethodPost, "/api/jobs", opts, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (m *Manager) EnqueueRefresh(ctx context.Context, library, version string) (string, error) {
	body := map[string]string{"library": library, "version": version}
	var resp struct {
		ID string `json:"id"`
	}
	if err := m.do(ctx, http.MethodPost, "/api/jobs/refresh", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := m.do(ctx, http.MethodGet, "/api/jobs/"+jobID, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (m *Manager) GetJobs(ctx context.Context) ([]*models.Job, error) {
	var resp struct {
		Jobs []*models.Job `json:"jobs"`
	}
	if err := m.do(ctx, http.MethodGet, "/api/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	return m.do(ctx, http.MethodDelete, "/api/jobs/"+jobID, nil, nil)
}

func (m *Manager) ClearCompletedJobs(ctx context.Context) int {
	var resp struct {
		Cleared int `json:"cleared"`
	}
	if err := m.do(ctx, http.MethodPost, "/api/jobs/clear-completed", nil, &resp); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to clear completed jobs on remote")
		return 0
	}
	return resp.Cleared
}

// WaitForJobCompletion subscribes before the first snapshot so a transition
// between the two can never be missed.
func (m *Manager) WaitForJobCompletion(ctx context.Context, jobID string) (*models.Job, error) {
	terminal := make(chan struct{}, 1)
	sub := m.events.Subscribe(models.EventJobStatusChange, func(ctx context.Context, ev models.Event) {
		p, ok := ev.Payload.(models.JobStatusChangePayload)
		if !ok || p.ID != jobID || !p.Status.IsTerminal() {
			return
		}
		select {
		case terminal <- struct{}{}:
		default:
		}
	})
	defer sub.Unsubscribe()

	for {
		job, err := m.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			if job.Status == models.JobStatusFailed {
				return job, fmt.Errorf("job failed: %s", job.Error)
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-terminal:
		}
	}
}

// do executes one API call. A nil out discards the response body.
func (m *Manager) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/api/jobs/") {
			return pipeline.ErrJobNotFound
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("remote error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("remote error: %s %s returned %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
