package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/pipeline"
)

type fakeManager struct {
	interfaces.PipelineManager

	jobs      map[string]*models.Job
	enqueued  []models.ScraperOptions
	refreshed []string
	cancelled []string
	cleared   int
}

func newFakeManager() *fakeManager {
	return &fakeManager{jobs: make(map[string]*models.Job)}
}

func (f *fakeManager) EnqueueJob(ctx context.Context, opts models.ScraperOptions) (string, error) {
	f.enqueued = append(f.enqueued, opts)
	return "job-1", nil
}

func (f *fakeManager) EnqueueRefresh(ctx context.Context, library, version string) (string, error) {
	f.refreshed = append(f.refreshed, library+"@"+version)
	return "job-2", nil
}

func (f *fakeManager) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, pipeline.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeManager) GetJobs(ctx context.Context) ([]*models.Job, error) {
	out := make([]*models.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeManager) CancelJob(ctx context.Context, jobID string) error {
	if _, ok := f.jobs[jobID]; !ok {
		return pipeline.ErrJobNotFound
	}
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeManager) ClearCompletedJobs(ctx context.Context) int {
	return f.cleared
}

func TestEnqueueHandlerAcceptsJob(t *testing.T) {
	mgr := newFakeManager()
	h := NewJobHandler(mgr, arbor.NewLogger())

	body := `{"url": "https://docs.example.com/", "library": "example", "version": "1.0.0"}`
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.EnqueueHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp["id"])
	assert.Equal(t, "queued", resp["status"])

	require.Len(t, mgr.enqueued, 1)
	assert.Equal(t, "example", mgr.enqueued[0].Library)
}

func TestEnqueueHandlerRejectsMalformedBody(t *testing.T) {
	h := NewJobHandler(newFakeManager(), arbor.NewLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.EnqueueHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshHandlerRequiresLibrary(t *testing.T) {
	mgr := newFakeManager()
	h := NewJobHandler(mgr, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/refresh", strings.NewReader(`{"version": "1.0.0"}`))
	rec := httptest.NewRecorder()
	h.RefreshHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/jobs/refresh", strings.NewReader(`{"library": "react", "version": "18.2.0"}`))
	rec = httptest.NewRecorder()
	h.RefreshHandler(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"react@18.2.0"}, mgr.refreshed)
}

func TestJobByIDHandlerGetAndCancel(t *testing.T) {
	mgr := newFakeManager()
	mgr.jobs["abc"] = &models.Job{ID: "abc", Library: "react", Status: models.JobStatusRunning}
	h := NewJobHandler(mgr, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/abc", nil)
	rec := httptest.NewRecorder()
	h.JobByIDHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "abc", job.ID)

	req = httptest.NewRequest(http.MethodDelete, "/api/jobs/abc", nil)
	rec = httptest.NewRecorder()
	h.JobByIDHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"abc"}, mgr.cancelled)
}

func TestJobByIDHandlerUnknownJobReturns404(t *testing.T) {
	h := NewJobHandler(newFakeManager(), arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	rec := httptest.NewRecorder()
	h.JobByIDHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobsHandler(t *testing.T) {
	mgr := newFakeManager()
	mgr.jobs["a"] = &models.Job{ID: "a"}
	mgr.jobs["b"] = &models.Job{ID: "b"}
	h := NewJobHandler(mgr, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	h.ListJobsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Jobs  []*models.Job `json:"jobs"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestClearCompletedHandler(t *testing.T) {
	mgr := newFakeManager()
	mgr.cleared = 3
	h := NewJobHandler(mgr, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/clear-completed", nil)
	rec := httptest.NewRecorder()
	h.ClearCompletedHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp["cleared"])
}
