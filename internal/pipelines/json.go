package pipelines

import (
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lectern/internal/splitter"
)

// JSONPipeline: decode, validate, extract title/description from
// conventional top-level fields, chunk structurally. Invalid JSON keeps its
// content and is chunked as text downstream.
type JSONPipeline struct {
	basePipeline
	splitOpts splitter.Options
}

func NewJSONPipeline(splitOpts splitter.Options, logger arbor.ILogger) *JSONPipeline {
	p := &JSONPipeline{splitOpts: splitOpts}
	p.name = "json"
	p.logger = logger
	p.middlewares = []Middleware{
		decodeMiddleware,
		extractJSONMetadata,
		p.chunk,
	}
	return p
}

func (p *JSONPipeline) CanProcess(mimeType string) bool {
	switch mimeType {
	case "application/json", "text/json":
		return true
	}
	return false
}

var (
	jsonTitleKeys       = []string{"title", "name", "displayName", "label"}
	jsonDescriptionKeys = []string{"description", "summary", "about", "info"}
)

func extractJSONMetadata(c *Context) error {
	var value map[string]interface{}
	if err := json.Unmarshal([]byte(c.Content), &value); err != nil {
		c.AddError(fmt.Errorf("invalid JSON: %w", err))
		return nil
	}
	for _, key := range jsonTitleKeys {
		if s, ok := value[key].(string); ok && s != "" {
			c.Title = s
			break
		}
	}
	for _, key := range jsonDescriptionKeys {
		if s, ok := value[key].(string); ok && s != "" {
			c.Description = s
			break
		}
	}
	return nil
}

func (p *JSONPipeline) chunk(c *Context) error {
	s := splitter.NewJSONSplitter(p.splitOpts)
	chunks, err := s.Split(c.Content)
	if err != nil {
		return fmt.Errorf("split JSON: %w", err)
	}
	c.Chunks = chunks
	return nil
}
