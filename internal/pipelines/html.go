package pipelines

import (
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lectern/internal/splitter"
)

// HTMLPipeline: decode, parse DOM, extract metadata and links, sanitize,
// convert to Markdown, chunk. The content type flips to text/markdown on a
// successful conversion so retrieval treats the page as prose.
type HTMLPipeline struct {
	basePipeline
	splitOpts splitter.Options
}

func NewHTMLPipeline(splitOpts splitter.Options, logger arbor.ILogger) *HTMLPipeline {
	p := &HTMLPipeline{splitOpts: splitOpts}
	p.name = "html"
	p.logger = logger
	p.middlewares = []Middleware{
		decodeMiddleware,
		parseDOM,
		extractHTMLMetadata,
		extractHTMLLinks,
		sanitizeDOM,
		p.convertToMarkdown,
		p.chunk,
	}
	return p
}

func (p *HTMLPipeline) CanProcess(mimeType string) bool {
	switch mimeType {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

func parseDOM(c *Context) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(c.Content))
	if err != nil {
		return fmt.Errorf("parse HTML: %w", err)
	}
	c.doc = doc
	return nil
}

func htmlDoc(c *Context) *goquery.Document {
	doc, _ := c.doc.(*goquery.Document)
	return doc
}

func extractHTMLMetadata(c *Context) error {
	doc := htmlDoc(c)
	if doc == nil {
		return nil
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		c.Title = title
	} else if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && og != "" {
		c.Title = strings.TrimSpace(og)
	} else if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		c.Title = h1
	}
	if desc, ok := doc.Find("meta[name='description']").Attr("content"); ok {
		c.Description = strings.TrimSpace(desc)
	}
	return nil
}

func extractHTMLLinks(c *Context) error {
	doc := htmlDoc(c)
	if doc == nil {
		return nil
	}
	base, err := url.Parse(c.Source)
	if err != nil {
		c.AddError(fmt.Errorf("parse source URL %q: %w", c.Source, err))
		base = nil
	}

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || shouldSkipLink(href) {
			return
		}
		resolved := resolveLink(href, base)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		c.Links = append(c.Links, resolved)
	})
	return nil
}

func shouldSkipLink(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(href, "#")
}

func resolveLink(href string, base *url.URL) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	ref.Fragment = ""
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" && ref.Scheme != "file" {
		return ""
	}
	return ref.String()
}

func sanitizeDOM(c *Context) error {
	doc := htmlDoc(c)
	if doc == nil {
		return nil
	}
	doc.Find("script, style, noscript, iframe, object, embed").Remove()
	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})
	return nil
}

func (p *HTMLPipeline) convertToMarkdown(c *Context) error {
	doc := htmlDoc(c)
	if doc == nil {
		return nil
	}
	html, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(html) == "" {
		if html, err = doc.Html(); err != nil {
			c.AddError(fmt.Errorf("serialize DOM: %w", err))
			return nil
		}
	}

	domain := ""
	if u, err := url.Parse(c.Source); err == nil {
		domain = u.Scheme + "://" + u.Host
	}
	converter := md.NewConverter(domain, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		c.AddError(fmt.Errorf("markdown conversion: %w", err))
		return nil
	}
	c.Content = markdown
	c.ContentType = "text/markdown"
	return nil
}

func (p *HTMLPipeline) chunk(c *Context) error {
	s := splitter.ForContentType(c.ContentType, sourceName(c.Source), p.splitOpts)
	chunks, err := s.Split(c.Content)
	if err != nil {
		return fmt.Errorf("split content: %w", err)
	}
	c.Chunks = chunks
	return nil
}
