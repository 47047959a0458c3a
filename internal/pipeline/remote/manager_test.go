package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/handlers"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/pipeline"
	"github.com/ternarybob/lectern/internal/services/events"
)

// daemonManager is the pipeline manager behind the fake daemon.
type daemonManager struct {
	interfaces.PipelineManager

	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newDaemonManager() *daemonManager {
	return &daemonManager{jobs: make(map[string]*models.Job)}
}

func (d *daemonManager) setJob(job *models.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs[job.ID] = job
}

func (d *daemonManager) EnqueueJob(ctx context.Context, opts models.ScraperOptions) (string, error) {
	if opts.URL == "" {
		return "", errors.New("url is required")
	}
	job := &models.Job{ID: "job-1", Library: opts.Library, Status: models.JobStatusQueued, Options: opts}
	d.setJob(job)
	return job.ID, nil
}

func (d *daemonManager) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[jobID]
	if !ok {
		return nil, pipeline.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (d *daemonManager) CancelJob(ctx context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.jobs[jobID]; !ok {
		return pipeline.ErrJobNotFound
	}
	return nil
}

func (d *daemonManager) ClearCompletedJobs(ctx context.Context) int { return 2 }

// newDaemon assembles a minimal daemon: the real job handlers plus the
// websocket event stream, backed by its own event bus.
func newDaemon(t *testing.T, mgr interfaces.PipelineManager) (*httptest.Server, interfaces.EventService, *handlers.WebSocketHandler) {
	t.Helper()
	logger := arbor.NewLogger()

	bus := events.NewService(logger)
	t.Cleanup(func() { bus.Close() })

	ws := handlers.NewWebSocketHandler(bus, logger)
	t.Cleanup(ws.Close)

	jobs := handlers.NewJobHandler(mgr, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.HandleWebSocket)
	mux.HandleFunc("/api/jobs", jobs.EnqueueHandler)
	mux.HandleFunc("/api/jobs/clear-completed", jobs.ClearCompletedHandler)
	mux.HandleFunc("/api/jobs/", jobs.JobByIDHandler)
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, bus, ws
}

func TestRemoteEnqueueAndGetJob(t *testing.T) {
	daemon := newDaemonManager()
	srv, _, _ := newDaemon(t, daemon)

	localBus := events.NewService(arbor.NewLogger())
	defer localBus.Close()

	m := NewManager(srv.URL, localBus, arbor.NewLogger())

	id, err := m.EnqueueJob(context.Background(), models.ScraperOptions{
		URL:     "https://docs.example.com/",
		Library: "example",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	job, err := m.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "example", job.Library)
	assert.Equal(t, models.JobStatusQueued, job.Status)

	_, err = m.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, pipeline.ErrJobNotFound)
}

func TestRemoteEnqueueSurfacesValidationError(t *testing.T) {
	srv, _, _ := newDaemon(t, newDaemonManager())

	localBus := events.NewService(arbor.NewLogger())
	defer localBus.Close()

	m := NewManager(srv.URL, localBus, arbor.NewLogger())
	_, err := m.EnqueueJob(context.Background(), models.ScraperOptions{Library: "example"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url is required")
}

func TestRemoteClearCompletedJobs(t *testing.T) {
	srv, _, _ := newDaemon(t, newDaemonManager())

	localBus := events.NewService(arbor.NewLogger())
	defer localBus.Close()

	m := NewManager(srv.URL, localBus, arbor.NewLogger())
	assert.Equal(t, 2, m.ClearCompletedJobs(context.Background()))
}

func TestEventProxyRepublishesDaemonEvents(t *testing.T) {
	srv, daemonBus, _ := newDaemon(t, newDaemonManager())

	localBus := events.NewService(arbor.NewLogger())
	defer localBus.Close()

	var mu sync.Mutex
	var received []models.JobStatusChangePayload
	sub := localBus.Subscribe(models.EventJobStatusChange, func(ctx context.Context, ev models.Event) {
		payload, ok := ev.Payload.(models.JobStatusChangePayload)
		if !ok {
			return
		}
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	proxy, err := newEventProxy(srv.URL, localBus, arbor.NewLogger())
	require.NoError(t, err)
	proxy.Start()
	defer proxy.Stop()

	// publish repeatedly until the proxy connection is up and the frame
	// makes the round trip
	require.Eventually(t, func() bool {
		daemonBus.Publish(context.Background(), models.Event{
			Type: models.EventJobStatusChange,
			Payload: models.JobStatusChangePayload{
				ID:     "job-9",
				Status: models.JobStatusCompleted,
			},
		})
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "job-9", received[0].ID)
	assert.Equal(t, models.JobStatusCompleted, received[0].Status)
}

func TestWaitForJobCompletion(t *testing.T) {
	daemon := newDaemonManager()
	daemon.setJob(&models.Job{ID: "job-1", Library: "example", Status: models.JobStatusRunning})
	srv, _, _ := newDaemon(t, daemon)

	localBus := events.NewService(arbor.NewLogger())
	defer localBus.Close()

	m := NewManager(srv.URL, localBus, arbor.NewLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		daemon.setJob(&models.Job{ID: "job-1", Library: "example", Status: models.JobStatusCompleted})
		localBus.Publish(context.Background(), models.Event{
			Type:    models.EventJobStatusChange,
			Payload: models.JobStatusChangePayload{ID: "job-1", Status: models.JobStatusCompleted},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := m.WaitForJobCompletion(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestWaitForJobCompletionFailedJob(t *testing.T) {
	daemon := newDaemonManager()
	daemon.setJob(&models.Job{ID: "job-1", Status: models.JobStatusFailed, Error: "fetch blew up"})
	srv, _, _ := newDaemon(t, daemon)

	localBus := events.NewService(arbor.NewLogger())
	defer localBus.Close()

	m := NewManager(srv.URL, localBus, arbor.NewLogger())

	job, err := m.WaitForJobCompletion(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch blew up")
	assert.Equal(t, models.JobStatusFailed, job.Status)
}
