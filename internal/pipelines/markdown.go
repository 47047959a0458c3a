package pipelines

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lectern/internal/splitter"
)

// MarkdownPipeline: decode, pull metadata from frontmatter or the first
// heading, collect links. Content passes through otherwise unchanged.
type MarkdownPipeline struct {
	basePipeline
	splitOpts splitter.Options
}

func NewMarkdownPipeline(splitOpts splitter.Options, logger arbor.ILogger) *MarkdownPipeline {
	p := &MarkdownPipeline{splitOpts: splitOpts}
	p.name = "markdown"
	p.logger = logger
	p.middlewares = []Middleware{
		decodeMiddleware,
		extractMarkdownMetadata,
		extractMarkdownLinks,
		p.chunk,
	}
	return p
}

func (p *MarkdownPipeline) CanProcess(mimeType string) bool {
	switch mimeType {
	case "text/markdown", "text/x-markdown":
		return true
	}
	return false
}

var (
	frontmatterTitle = regexp.MustCompile(`(?m)^title:\s*["']?(.+?)["']?\s*$`)
	firstHeading     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	markdownLink     = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)[^)]*\)`)
)

func extractMarkdownMetadata(c *Context) error {
	if strings.HasPrefix(c.Content, "---\n") {
		if end := strings.Index(c.Content[4:], "\n---"); end >= 0 {
			front := c.Content[4 : 4+end]
			if m := frontmatterTitle.FindStringSubmatch(front); m != nil {
				c.Title = strings.TrimSpace(m[1])
			}
		}
	}
	if c.Title == "" {
		if m := firstHeading.FindStringSubmatch(c.Content); m != nil {
			c.Title = strings.TrimSpace(m[1])
		}
	}
	return nil
}

func extractMarkdownLinks(c *Context) error {
	base, err := url.Parse(c.Source)
	if err != nil {
		base = nil
	}
	seen := make(map[string]bool)
	for _, m := range markdownLink.FindAllStringSubmatch(c.Content, -1) {
		href := strings.TrimSpace(m[1])
		if href == "" || shouldSkipLink(href) {
			continue
		}
		resolved := resolveLink(href, base)
		if resolved == "" || seen[resolved] {
			continue
		}
		seen[resolved] = true
		c.Links = append(c.Links, resolved)
	}
	return nil
}

func (p *MarkdownPipeline) chunk(c *Context) error {
	s := splitter.NewMarkdownSplitter(p.splitOpts)
	chunks, err := s.Split(c.Content)
	if err != nil {
		return fmt.Errorf("split markdown: %w", err)
	}
	c.Chunks = chunks
	return nil
}
