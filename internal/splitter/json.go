package splitter

import (
	"fmt"
	"strconv"

	"github.com/ternarybob/lectern/internal/models"
)

// JSONSplitter emits one minimal chunk per structural token (brace or
// bracket) and per primitive member, slicing the raw input so that
// concatenation reproduces the document byte for byte. Paths start at
// ["root"] and extend with property names or "[i]" indices.
//
// Two bounds apply: below maxDepth the remaining subtree becomes a single
// chunk, and past maxChunks the whole document falls back to text
// splitting.
type JSONSplitter struct {
	opts Options
	text *TextSplitter
}

func NewJSONSplitter(opts Options) *JSONSplitter {
	return &JSONSplitter{opts: opts.withDefaults(), text: NewTextSplitter(opts)}
}

var errChunkBudget = fmt.Errorf("chunk budget exceeded")

type jsonScanner struct {
	src    string
	pos    int
	mark   int // start of the next chunk; pending bytes accumulate here
	chunks []models.Chunk
	max    int
	depth  int
	text   *TextSplitter
	limit  int
}

func (s *JSONSplitter) Split(content string) ([]models.Chunk, error) {
	if content == "" {
		return nil, nil
	}
	sc := &jsonScanner{
		src:   content,
		max:   s.opts.MaxSize,
		depth: s.opts.JSONMaxDepth,
		limit: s.opts.JSONMaxChunks,
		text:  s.text,
	}
	if err := sc.run(); err != nil {
		// Malformed input or chunk explosion: index as plain text.
		return s.text.Split(content)
	}
	return sc.chunks, nil
}

func (sc *jsonScanner) run() error {
	sc.skipSpace()
	if err := sc.value([]string{"root"}); err != nil {
		return err
	}
	sc.skipSpace()
	if sc.pos != len(sc.src) {
		return fmt.Errorf("trailing data at offset %d", sc.pos)
	}
	sc.flushTail()
	return nil
}

// emit closes the pending chunk at the current position.
func (sc *jsonScanner) emit(path []string, structural bool) error {
	if len(sc.chunks) >= sc.limit {
		return errChunkBudget
	}
	content := sc.src[sc.mark:sc.pos]
	sc.mark = sc.pos
	if content == "" {
		return nil
	}
	types := []string{TypeJSON}
	if structural {
		types = []string{TypeJSON, TypeStructural}
	}
	if len(content) > sc.max {
		// Oversized primitive: keep the property prefix in the first
		// chunk, spread the value across successors at the same path.
		sub := sc.text.SplitAt(content, len(path), path, types)
		if len(sc.chunks)+len(sub) > sc.limit {
			return errChunkBudget
		}
		sc.chunks = append(sc.chunks, sub...)
		return nil
	}
	sc.chunks = append(sc.chunks, models.Chunk{
		Types:   types,
		Content: content,
		Section: models.SectionInfo{Level: len(path), Path: path},
	})
	return nil
}

// flushTail appends trailing whitespace to the final chunk.
func (sc *jsonScanner) flushTail() {
	if sc.mark >= len(sc.src) || len(sc.chunks) == 0 {
		return
	}
	sc.chunks[len(sc.chunks)-1].Content += sc.src[sc.mark:]
	sc.mark = len(sc.src)
}

func (sc *jsonScanner) value(path []string) error {
	sc.skipSpace()
	if sc.pos >= len(sc.src) {
		return fmt.Errorf("unexpected end of input")
	}
	if len(path) > sc.depth {
		// Depth bound reached: the whole subtree becomes one chunk.
		if err := sc.skipValue(); err != nil {
			return err
		}
		return sc.emit(path, false)
	}
	switch sc.src[sc.pos] {
	case '{':
		return sc.object(path)
	case '[':
		return sc.array(path)
	default:
		if err := sc.scanScalar(); err != nil {
			return err
		}
		return sc.emit(path, false)
	}
}

func (sc *jsonScanner) object(path []string) error {
	sc.pos++ // '{'
	if err := sc.emit(path, true); err != nil {
		return err
	}
	sc.skipSpace()
	if sc.pos < len(sc.src) && sc.src[sc.pos] == '}' {
		sc.pos++
		return sc.emit(path, true)
	}
	for {
		sc.skipSpace()
		key, err := sc.scanKey()
		if err != nil {
			return err
		}
		sc.skipSpace()
		if sc.pos >= len(sc.src) || sc.src[sc.pos] != ':' {
			return fmt.Errorf("expected ':' at offset %d", sc.pos)
		}
		sc.pos++
		if err := sc.value(appendPath(path, key)); err != nil {
			return err
		}
		sc.skipSpace()
		if sc.pos >= len(sc.src) {
			return fmt.Errorf("unterminated object")
		}
		switch sc.src[sc.pos] {
		case ',':
			sc.pos++
		case '}':
			sc.pos++
			return sc.emit(path, true)
		default:
			return fmt.Errorf("expected ',' or '}' at offset %d", sc.pos)
		}
	}
}

func (sc *jsonScanner) array(path []string) error {
	sc.pos++ // '['
	if err := sc.emit(path, true); err != nil {
		return err
	}
	sc.skipSpace()
	if sc.pos < len(sc.src) && sc.src[sc.pos] == ']' {
		sc.pos++
		return sc.emit(path, true)
	}
	for i := 0; ; i++ {
		if err := sc.value(appendPath(path, "["+strconv.Itoa(i)+"]")); err != nil {
			return err
		}
		sc.skipSpace()
		if sc.pos >= len(sc.src) {
			return fmt.Errorf("unterminated array")
		}
		switch sc.src[sc.pos] {
		case ',':
			sc.pos++
		case ']':
			sc.pos++
			return sc.emit(path, true)
		default:
			return fmt.Errorf("expected ',' or ']' at offset %d", sc.pos)
		}
	}
}

func (sc *jsonScanner) scanKey() (string, error) {
	if sc.pos >= len(sc.src) || sc.src[sc.pos] != '"' {
		return "", fmt.Errorf("expected object key at offset %d", sc.pos)
	}
	start := sc.pos
	if err := sc.scanString(); err != nil {
		return "", err
	}
	raw := sc.src[start:sc.pos]
	var key string
	if err := unquote(raw, &key); err != nil {
		return "", err
	}
	return key, nil
}

func (sc *jsonScanner) scanScalar() error {
	if sc.src[sc.pos] == '"' {
		return sc.scanString()
	}
	for sc.pos < len(sc.src) {
		switch sc.src[sc.pos] {
		case ',', '}', ']', ' ', '\t', '\n', '\r':
			return nil
		}
		sc.pos++
	}
	return nil
}

func (sc *jsonScanner) scanString() error {
	sc.pos++ // opening quote
	for sc.pos < len(sc.src) {
		switch sc.src[sc.pos] {
		case '\\':
			sc.pos += 2
		case '"':
			sc.pos++
			return nil
		default:
			sc.pos++
		}
	}
	return fmt.Errorf("unterminated string")
}

// skipValue advances past a complete value without emitting chunks.
func (sc *jsonScanner) skipValue() error {
	sc.skipSpace()
	if sc.pos >= len(sc.src) {
		return fmt.Errorf("unexpected end of input")
	}
	switch sc.src[sc.pos] {
	case '"':
		return sc.scanString()
	case '{', '[':
		depth := 0
		for sc.pos < len(sc.src) {
			switch sc.src[sc.pos] {
			case '"':
				if err := sc.scanString(); err != nil {
					return err
				}
				continue
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 0 {
					sc.pos++
					return nil
				}
			}
			sc.pos++
		}
		return fmt.Errorf("unbalanced value")
	default:
		return sc.scanScalar()
	}
}

func (sc *jsonScanner) skipSpace() {
	for sc.pos < len(sc.src) {
		switch sc.src[sc.pos] {
		case ' ', '\t', '\n', '\r':
			sc.pos++
		default:
			return
		}
	}
}

func appendPath(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

func unquote(raw string, out *string) error {
	if v, err := strconv.Unquote(raw); err == nil {
		*out = v
		return nil
	}
	// JSON allows escapes Go does not (e.g. \/); fall back to the raw
	// body, which is still a stable path component.
	if len(raw) < 2 {
		return fmt.Errorf("malformed string literal")
	}
	*out = raw[1 : len(raw)-1]
	return nil
}
