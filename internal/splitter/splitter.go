package splitter

import (
	"strings"

	"github.com/ternarybob/lectern/internal/models"
)

// Chunk type tags. Every chunk carries a primary tag; source chunks add a
// boundary tag (structural or content).
const (
	TypeText       = "text"
	TypeMarkdown   = "markdown"
	TypeHeading    = "heading"
	TypeJSON       = "json"
	TypeCode       = "code"
	TypeStructural = "structural"
	TypeContent    = "content"
)

// Options are chunk size bounds in characters.
type Options struct {
	MinSize       int
	PreferredSize int
	MaxSize       int
	JSONMaxDepth  int
	JSONMaxChunks int
}

// DefaultOptions returns the standard size bounds.
func DefaultOptions() Options {
	return Options{
		MinSize:       500,
		PreferredSize: 1500,
		MaxSize:       5000,
		JSONMaxDepth:  5,
		JSONMaxChunks: 1000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinSize <= 0 {
		o.MinSize = d.MinSize
	}
	if o.PreferredSize <= 0 {
		o.PreferredSize = d.PreferredSize
	}
	if o.MaxSize <= 0 {
		o.MaxSize = d.MaxSize
	}
	if o.JSONMaxDepth <= 0 {
		o.JSONMaxDepth = d.JSONMaxDepth
	}
	if o.JSONMaxChunks <= 0 {
		o.JSONMaxChunks = d.JSONMaxChunks
	}
	return o
}

// Splitter produces hierarchical chunks from a logical document string.
// Concatenating the returned chunks in order reconstructs the input.
type Splitter interface {
	Split(content string) ([]models.Chunk, error)
}

// ForContentType selects a splitter for a MIME type. name is the source
// file or page name, used as the path root by the source splitter.
func ForContentType(contentType, name string, opts Options) Splitter {
	mime := contentType
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.ToLower(strings.TrimSpace(mime))

	switch mime {
	case "text/markdown", "text/x-markdown":
		return NewMarkdownSplitter(opts)
	case "application/json", "text/json":
		return NewJSONSplitter(opts)
	}
	if lang, ok := LanguageForContentType(mime); ok {
		return NewSourceSplitter(lang, name, opts)
	}
	return NewTextSplitter(opts)
}

func hasType(c models.Chunk, t string) bool {
	for _, ct := range c.Types {
		if ct == t {
			return true
		}
	}
	return false
}

func mergeTypes(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range b {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
