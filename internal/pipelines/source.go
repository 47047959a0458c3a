package pipelines

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lectern/internal/splitter"
)

// SourcePipeline: decode and chunk source code by declaration boundaries.
// No Markdown conversion happens here; the splitter owns the structure.
type SourcePipeline struct {
	basePipeline
	splitOpts splitter.Options
}

func NewSourcePipeline(splitOpts splitter.Options, logger arbor.ILogger) *SourcePipeline {
	p := &SourcePipeline{splitOpts: splitOpts}
	p.name = "source"
	p.logger = logger
	p.middlewares = []Middleware{
		decodeMiddleware,
		p.chunk,
	}
	return p
}

func (p *SourcePipeline) CanProcess(mimeType string) bool {
	_, ok := splitter.LanguageForContentType(mimeType)
	return ok
}

func (p *SourcePipeline) chunk(c *Context) error {
	name := sourceName(c.Source)
	lang, ok := splitter.LanguageForContentType(normalizeMime(c.ContentType))
	if !ok {
		lang, ok = splitter.LanguageForExtension(name)
	}
	if !ok {
		// unsupported language, line-based fallback
		chunks, err := splitter.NewTextSplitter(p.splitOpts).Split(c.Content)
		if err != nil {
			return fmt.Errorf("split text: %w", err)
		}
		c.Chunks = chunks
		return nil
	}

	s := splitter.NewSourceSplitter(lang, name, p.splitOpts)
	chunks, err := s.Split(c.Content)
	if err != nil {
		return fmt.Errorf("split source: %w", err)
	}
	c.Chunks = chunks
	return nil
}
