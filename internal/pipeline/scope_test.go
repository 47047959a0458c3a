package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/lectern/internal/models"
)

func mustFilter(t *testing.T, opts models.ScraperOptions) *linkFilter {
	t.Helper()
	f, err := newLinkFilter(opts.WithDefaults())
	require.NoError(t, err)
	return f
}

func TestScopeSubpages(t *testing.T) {
	f := mustFilter(t, models.ScraperOptions{URL: "https://docs.example.com/guide/intro"})

	assert.True(t, f.Allow("https://docs.example.com/guide/advanced"))
	assert.True(t, f.Allow("https://docs.example.com/guide/nested/page"))
	assert.False(t, f.Allow("https://docs.example.com/api/reference"))
	assert.False(t, f.Allow("https://other.example.com/guide/intro"))
	assert.False(t, f.Allow("http://docs.example.com/guide/intro"))
}

func TestScopeHostname(t *testing.T) {
	f := mustFilter(t, models.ScraperOptions{
		URL:   "https://docs.example.com/guide/intro",
		Scope: models.ScopeHostname,
	})

	assert.True(t, f.Allow("https://docs.example.com/api/reference"))
	assert.False(t, f.Allow("https://www.example.com/guide"))
}

func TestScopeDomain(t *testing.T) {
	f := mustFilter(t, models.ScraperOptions{
		URL:   "https://docs.example.com/guide",
		Scope: models.ScopeDomain,
	})

	assert.True(t, f.Allow("https://api.example.com/reference"))
	assert.True(t, f.Allow("https://www.example.com/home"))
	assert.False(t, f.Allow("https://example.org/guide"))
}

func TestExcludeTakesPrecedence(t *testing.T) {
	f := mustFilter(t, models.ScraperOptions{
		URL:             "https://docs.example.com/",
		Scope:           models.ScopeHostname,
		IncludePatterns: []string{"/guide/*"},
		ExcludePatterns: []string{"/guide/internal*"},
	})

	assert.True(t, f.Allow("https://docs.example.com/guide/intro"))
	assert.False(t, f.Allow("https://docs.example.com/guide/internal-notes"))
	assert.False(t, f.Allow("https://docs.example.com/api/ref"))
}

func TestRegexPatterns(t *testing.T) {
	f := mustFilter(t, models.ScraperOptions{
		URL:             "https://docs.example.com/",
		Scope:           models.ScopeHostname,
		ExcludePatterns: []string{`/v[0-9]+\.[0-9]+/`},
	})

	assert.True(t, f.Allow("https://docs.example.com/latest/intro"))
	assert.False(t, f.Allow("https://docs.example.com/v1.2/intro"))
}

func TestFileScope(t *testing.T) {
	f := mustFilter(t, models.ScraperOptions{URL: "file:///docs/index.md"})

	assert.True(t, f.Allow("file:///docs/sub.md"))
	assert.True(t, f.Allow("file:///docs/nested/deep.md"))
	assert.False(t, f.Allow("file:///other/file.md"))
	assert.False(t, f.Allow("https://docs.example.com/index.md"))
}

func TestInitialQueueRootAppearsOnce(t *testing.T) {
	pageID := int64(7)
	etag := "abc"
	opts := models.ScraperOptions{
		URL: "https://docs.example.com/",
		InitialQueue: []models.QueueItem{
			{URL: "https://docs.example.com/", Depth: 0, PageID: &pageID, Etag: &etag},
			{URL: "https://docs.example.com/sub", Depth: 1},
		},
	}

	queue := initialQueue(opts)
	require.Len(t, queue, 2)
	assert.Equal(t, "https://docs.example.com/", queue[0].URL)
	assert.Equal(t, 0, queue[0].Depth)
	require.NotNil(t, queue[0].PageID)
	assert.Equal(t, pageID, *queue[0].PageID)
	require.NotNil(t, queue[0].Etag)
	assert.Equal(t, "abc", *queue[0].Etag)
	assert.Equal(t, "https://docs.example.com/sub", queue[1].URL)
}

func TestInitialQueueWithoutRefreshSeed(t *testing.T) {
	queue := initialQueue(models.ScraperOptions{URL: "https://docs.example.com/start"})
	require.Len(t, queue, 1)
	assert.Equal(t, "https://docs.example.com/start", queue[0].URL)
	assert.Nil(t, queue[0].PageID)
}
