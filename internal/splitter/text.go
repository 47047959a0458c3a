package splitter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/lectern/internal/models"
)

// TextSplitter is the hierarchical fallback. It tries paragraph boundaries,
// then lines, then words, then raw character counts, preserving every byte
// of whitespace so concatenation reconstructs the input exactly.
type TextSplitter struct {
	opts Options
}

func NewTextSplitter(opts Options) *TextSplitter {
	return &TextSplitter{opts: opts.withDefaults()}
}

var paragraphBoundary = regexp.MustCompile(`\n[ \t]*\n`)

func (s *TextSplitter) Split(content string) ([]models.Chunk, error) {
	if content == "" {
		return nil, nil
	}
	pieces := s.pieces(content, 0)
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, models.Chunk{
			Types:   []string{TypeText},
			Content: p,
			Section: models.SectionInfo{Level: 0, Path: []string{}},
		})
	}
	return chunks, nil
}

// SplitAt splits content and stamps every chunk with the given hierarchy
// position. Used when other splitters delegate oversized bodies here.
func (s *TextSplitter) SplitAt(content string, level int, path []string, types []string) []models.Chunk {
	pieces := s.pieces(content, 0)
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, models.Chunk{
			Types:   types,
			Content: p,
			Section: models.SectionInfo{Level: level, Path: path},
		})
	}
	return chunks
}

// pieces splits text so that every piece fits MaxSize, descending through
// boundary granularities. Adjacent small pieces are packed back together up
// to the preferred size.
func (s *TextSplitter) pieces(text string, granularity int) []string {
	if len(text) <= s.opts.MaxSize {
		return []string{text}
	}

	var parts []string
	switch granularity {
	case 0:
		parts = splitAfterPattern(text, paragraphBoundary)
	case 1:
		parts = strings.SplitAfter(text, "\n")
	case 2:
		parts = strings.SplitAfter(text, " ")
	default:
		return splitByRunes(text, s.opts.MaxSize)
	}

	if len(parts) <= 1 {
		return s.pieces(text, granularity+1)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) > s.opts.MaxSize {
			out = append(out, s.pieces(p, granularity+1)...)
		} else if p != "" {
			out = append(out, p)
		}
	}
	return s.pack(out)
}

// pack greedily joins adjacent pieces while the result stays within the
// preferred size. Single oversized-but-legal pieces pass through untouched.
func (s *TextSplitter) pack(parts []string) []string {
	out := make([]string, 0, len(parts))
	var cur strings.Builder
	for _, p := range parts {
		if cur.Len() > 0 && cur.Len()+len(p) > s.opts.PreferredSize {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// splitAfterPattern splits text at each regexp match, keeping the matched
// separator attached to the preceding piece.
func splitAfterPattern(text string, re *regexp.Regexp) []string {
	matches := re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	out := make([]string, 0, len(matches)+1)
	prev := 0
	for _, m := range matches {
		out = append(out, text[prev:m[1]])
		prev = m[1]
	}
	if prev < len(text) {
		out = append(out, text[prev:])
	}
	return out
}

// splitByRunes is the last resort: fixed-size slices aligned to rune
// boundaries.
func splitByRunes(text string, max int) []string {
	if max <= 0 {
		max = 1
	}
	var out []string
	for len(text) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = max
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
