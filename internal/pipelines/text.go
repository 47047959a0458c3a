package pipelines

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lectern/internal/splitter"
)

// TextPipeline is the fallback: decode, then line-oriented chunking.
type TextPipeline struct {
	basePipeline
	splitOpts splitter.Options
}

func NewTextPipeline(splitOpts splitter.Options, logger arbor.ILogger) *TextPipeline {
	p := &TextPipeline{splitOpts: splitOpts}
	p.name = "text"
	p.logger = logger
	p.middlewares = []Middleware{
		decodeMiddleware,
		p.chunk,
	}
	return p
}

func (p *TextPipeline) CanProcess(mimeType string) bool { return true }

func (p *TextPipeline) chunk(c *Context) error {
	chunks, err := splitter.NewTextSplitter(p.splitOpts).Split(c.Content)
	if err != nil {
		return fmt.Errorf("split text: %w", err)
	}
	c.Chunks = chunks
	return nil
}
