package splitter

import (
	"strings"

	"github.com/ternarybob/lectern/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MarkdownSplitter chunks a document at heading and block boundaries. Each
// chunk is a contiguous slice of the source, so concatenation reconstructs
// the input; levels and paths follow the heading hierarchy.
type MarkdownSplitter struct {
	opts Options
	md   goldmark.Markdown
	text *TextSplitter
}

func NewMarkdownSplitter(opts Options) *MarkdownSplitter {
	return &MarkdownSplitter{
		opts: opts.withDefaults(),
		md:   goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough)),
		text: NewTextSplitter(opts),
	}
}

type headingFrame struct {
	level int
	title string
}

func (s *MarkdownSplitter) Split(content string) ([]models.Chunk, error) {
	if content == "" {
		return nil, nil
	}
	src := []byte(content)
	doc := s.md.Parser().Parse(text.NewReader(src))

	// Map each top-level block to the byte offset where its first line
	// starts. Blocks without a resolvable position fold into the
	// preceding chunk.
	type section struct {
		start int
		node  ast.Node
	}
	var sections []section
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		pos, ok := nodeStart(c)
		if !ok {
			continue
		}
		start := lineStart(src, pos)
		if len(sections) > 0 && start <= sections[len(sections)-1].start {
			continue
		}
		sections = append(sections, section{start: start, node: c})
	}
	if len(sections) == 0 {
		return s.text.Split(content)
	}
	sections[0].start = 0

	var stack []headingFrame
	var chunks []models.Chunk
	for i, sec := range sections {
		end := len(src)
		if i+1 < len(sections) {
			end = sections[i+1].start
		}
		body := content[sec.start:end]

		level := len(stack)
		types := []string{TypeMarkdown}
		if h, ok := sec.node.(*ast.Heading); ok {
			for len(stack) > 0 && stack[len(stack)-1].level >= h.Level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, headingFrame{level: h.Level, title: collectText(h, src)})
			level = h.Level
			types = []string{TypeMarkdown, TypeHeading}
		} else {
			switch sec.node.(type) {
			case *ast.FencedCodeBlock, *ast.CodeBlock:
				types = []string{TypeMarkdown, TypeCode}
			}
		}

		path := make([]string, len(stack))
		for j, f := range stack {
			path[j] = f.title
		}

		if len(body) > s.opts.MaxSize {
			chunks = append(chunks, s.text.SplitAt(body, level, path, types)...)
			continue
		}
		chunks = append(chunks, models.Chunk{
			Types:   types,
			Content: body,
			Section: models.SectionInfo{Level: level, Path: path},
		})
	}

	return Optimize(chunks, s.opts), nil
}

// nodeStart finds the smallest source offset attributable to a node.
func nodeStart(n ast.Node) (int, bool) {
	best := -1
	note := func(p int) {
		if best == -1 || p < best {
			best = p
		}
	}
	var visit func(ast.Node)
	visit = func(n ast.Node) {
		if n.Type() == ast.TypeBlock {
			if lines := n.Lines(); lines != nil && lines.Len() > 0 {
				note(lines.At(0).Start)
			}
		}
		if t, ok := n.(*ast.Text); ok {
			note(t.Segment.Start)
		}
		if f, ok := n.(*ast.FencedCodeBlock); ok && f.Info != nil {
			note(f.Info.Segment.Start)
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			visit(c)
		}
	}
	visit(n)
	return best, best >= 0
}

func lineStart(src []byte, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

func collectText(n ast.Node, src []byte) string {
	var sb strings.Builder
	var visit func(ast.Node)
	visit = func(n ast.Node) {
		if t, ok := n.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			visit(c)
		}
	}
	visit(n)
	return strings.TrimSpace(sb.String())
}
