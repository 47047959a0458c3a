package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/app"
	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/models"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := common.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Fetcher.FollowRobotsTxt = false
	cfg.Fetcher.MaxRetries = 1
	cfg.Fetcher.RetryBaseDelay = time.Millisecond
	cfg.Fetcher.RequestsPerSecond = 0

	ctx := context.Background()
	application, err := app.New(ctx, cfg, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, application.Start(ctx))
	t.Cleanup(func() { application.Close() })

	s := New(application)
	ts := httptest.NewServer(s.withMiddleware(s.router))
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out interface{}) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndVersionEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/health", &health))
	assert.Equal(t, "ok", health["status"])

	var version map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/version", &version))
	assert.NotEmpty(t, version["version"])
}

func TestScrapeSearchAndRemoveOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.md"),
		[]byte("# Install Guide\n\nrun the installer to set everything up\n"), 0o644))

	var enq map[string]string
	status := postJSON(t, ts.URL+"/api/jobs", models.ScraperOptions{
		URL:     "file://" + dir + "/index.md",
		Library: "localdocs",
		Version: "1.0.0",
	}, &enq)
	require.Equal(t, http.StatusAccepted, status)
	require.NotEmpty(t, enq["id"])

	// poll the job endpoint until the run finishes
	require.Eventually(t, func() bool {
		var job models.Job
		if getJSON(t, ts.URL+"/api/jobs/"+enq["id"], &job) != http.StatusOK {
			return false
		}
		return job.Status.IsTerminal()
	}, 10*time.Second, 50*time.Millisecond)

	var job models.Job
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/jobs/"+enq["id"], &job))
	require.Equal(t, models.JobStatusCompleted, job.Status)

	var libs struct {
		Libraries []models.LibraryInfo `json:"libraries"`
		Count     int                  `json:"count"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/libraries", &libs))
	require.Equal(t, 1, libs.Count)
	assert.Equal(t, "localdocs", libs.Libraries[0].Library.Name)

	var search struct {
		Results []models.SearchResult `json:"results"`
		Count   int                   `json:"count"`
	}
	url := fmt.Sprintf("%s/api/search?library=localdocs&version=1.x&q=installer", ts.URL)
	require.Equal(t, http.StatusOK, getJSON(t, url, &search))
	require.NotZero(t, search.Count)
	assert.Contains(t, search.Results[0].Content, "installer")

	var stats struct {
		Stats map[string]int64 `json:"stats"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/status", &stats))
	assert.EqualValues(t, 1, stats.Stats["pages"])

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/libraries/localdocs?version=1.0.0", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, http.StatusNotFound, getJSON(t, url, nil))
}

func TestSearchUnknownLibraryReturns404(t *testing.T) {
	ts := newTestServer(t)

	status := getJSON(t, ts.URL+"/api/search?library=ghost&q=anything", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUnknownJobReturns404(t *testing.T) {
	ts := newTestServer(t)

	status := getJSON(t, ts.URL+"/api/jobs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
