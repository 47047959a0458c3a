package pipelines

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lectern/internal/fetcher"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/splitter"
)

// Context is the mutable value threaded through a pipeline's middleware
// chain. Middlewares transform it in order; non-fatal problems accumulate
// in Errors instead of aborting the chain.
type Context struct {
	Ctx         context.Context
	Raw         *fetcher.RawContent
	Content     string
	Source      string
	Title       string
	Description string
	ContentType string
	Links       []string
	Errors      []string
	Options     models.ScraperOptions
	Chunks      []models.Chunk

	doc interface{} // parsed DOM, owned by the HTML middlewares
}

// AddError records a non-fatal processing error.
func (c *Context) AddError(err error) {
	if err != nil {
		c.Errors = append(c.Errors, err.Error())
	}
}

// Middleware transforms the context. A returned error is fatal to the
// remaining chain.
type Middleware func(c *Context) error

// Pipeline processes one content type family into a ScrapeResult.
type Pipeline interface {
	Name() string
	CanProcess(mimeType string) bool
	Process(ctx context.Context, raw *fetcher.RawContent, opts models.ScraperOptions) (*models.ScrapeResult, error)
}

// basePipeline runs an ordered middleware chain and assembles the result.
type basePipeline struct {
	name        string
	middlewares []Middleware
	logger      arbor.ILogger
}

func (p *basePipeline) Name() string { return p.name }

func (p *basePipeline) Process(ctx context.Context, raw *fetcher.RawContent, opts models.ScraperOptions) (*models.ScrapeResult, error) {
	c := &Context{
		Ctx:         ctx,
		Raw:         raw,
		Source:      raw.Source,
		ContentType: raw.MimeType,
		Options:     opts,
	}
	for _, m := range p.middlewares {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := m(c); err != nil {
			p.logger.Warn().
				Str("pipeline", p.name).
				Str("source", c.Source).
				Err(err).
				Msg("Pipeline middleware failed")
			return nil, err
		}
	}

	return &models.ScrapeResult{
		URL:          c.Source,
		Title:        c.Title,
		ContentType:  c.ContentType,
		TextContent:  c.Content,
		Links:        c.Links,
		Errors:       c.Errors,
		Chunks:       c.Chunks,
		Etag:         raw.Etag,
		LastModified: raw.LastModified,
	}, nil
}

// Registry selects a pipeline by MIME type, falling back to plain text.
type Registry struct {
	pipelines []Pipeline
	fallback  Pipeline
}

// NewRegistry wires the standard pipeline set.
func NewRegistry(splitOpts splitter.Options, logger arbor.ILogger) *Registry {
	return &Registry{
		pipelines: []Pipeline{
			NewHTMLPipeline(splitOpts, logger),
			NewMarkdownPipeline(splitOpts, logger),
			NewJSONPipeline(splitOpts, logger),
			NewSourcePipeline(splitOpts, logger),
		},
		fallback: NewTextPipeline(splitOpts, logger),
	}
}

// ForContentType returns the pipeline handling a MIME type.
func (r *Registry) ForContentType(mimeType string) Pipeline {
	mime := normalizeMime(mimeType)
	for _, p := range r.pipelines {
		if p.CanProcess(mime) {
			return p
		}
	}
	return r.fallback
}

func normalizeMime(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// sourceName extracts a display name for the path root from the source URL.
func sourceName(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "document"
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "document"
	}
	return base
}
