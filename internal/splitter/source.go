package splitter

import (
	"fmt"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/ternarybob/lectern/internal/models"
)

// Language identifies a supported tree-sitter grammar.
type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangPython     Language = "python"
)

// parserByteLimit caps what we hand to tree-sitter. Larger files get a
// semantic parse on the head and line-based splitting on the tail.
const parserByteLimit = 32 * 1024

// LanguageForExtension maps a file extension to a grammar.
func LanguageForExtension(name string) (Language, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".js", ".mjs", ".cjs", ".jsx":
		return LangJavaScript, true
	case ".ts", ".mts", ".cts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".py", ".pyi":
		return LangPython, true
	}
	return "", false
}

// LanguageForContentType maps a source MIME type to a grammar.
func LanguageForContentType(mime string) (Language, bool) {
	switch mime {
	case "text/javascript", "application/javascript", "text/jsx":
		return LangJavaScript, true
	case "text/x-typescript", "application/typescript":
		return LangTypeScript, true
	case "text/x-tsx":
		return LangTSX, true
	case "text/x-python", "application/x-python":
		return LangPython, true
	}
	return "", false
}

func grammar(lang Language) *tree_sitter.Language {
	switch lang {
	case LangJavaScript:
		return tree_sitter.NewLanguage(tree_sitter_javascript.Language())
	case LangTypeScript:
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	case LangTSX:
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	case LangPython:
		return tree_sitter.NewLanguage(tree_sitter_python.Language())
	}
	return nil
}

// SourceSplitter chunks source files at declaration boundaries. Structural
// chunks carry the container frame (class header, closing brace); content
// chunks carry whole functions and methods with their leading doc comments
// attached. Everything between boundaries accumulates into the following
// chunk, so concatenation is byte-exact.
type SourceSplitter struct {
	lang Language
	name string
	opts Options
	text *TextSplitter
}

func NewSourceSplitter(lang Language, name string, opts Options) *SourceSplitter {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	return &SourceSplitter{lang: lang, name: base, opts: opts.withDefaults(), text: NewTextSplitter(opts)}
}

func (s *SourceSplitter) Split(content string) ([]models.Chunk, error) {
	if content == "" {
		return nil, nil
	}
	if len(content) > parserByteLimit {
		cut := lineStart([]byte(content), parserByteLimit)
		if cut == 0 {
			return s.text.Split(content)
		}
		head, err := s.parse(content[:cut], false)
		if err != nil {
			return s.text.Split(content)
		}
		tail := s.text.SplitAt(content[cut:], 1, []string{s.name}, []string{TypeCode, TypeContent})
		return append(head, tail...), nil
	}
	chunks, err := s.parse(content, true)
	if err != nil {
		return s.text.Split(content)
	}
	return chunks, nil
}

func (s *SourceSplitter) parse(src string, strict bool) ([]models.Chunk, error) {
	lang := grammar(s.lang)
	if lang == nil {
		return nil, fmt.Errorf("unsupported language %q", s.lang)
	}
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(lang); err != nil {
		return nil, err
	}
	tree := parser.Parse([]byte(src), nil)
	if tree == nil {
		return nil, fmt.Errorf("parse failed")
	}
	defer tree.Close()
	root := tree.RootNode()
	if strict && root.HasError() {
		return nil, fmt.Errorf("syntax errors in %s", s.name)
	}

	em := &sourceEmitter{src: src, lang: s.lang, opts: s.opts, text: s.text}
	em.container(root, []string{s.name})
	em.flushTail([]string{s.name})
	return em.chunks, nil
}

type sourceEmitter struct {
	src    string
	lang   Language
	mark   int
	chunks []models.Chunk
	opts   Options
	text   *TextSplitter
}

func (e *sourceEmitter) container(node *tree_sitter.Node, path []string) {
	count := node.NamedChildCount()
	for i := uint(0); i < count; i++ {
		child := node.NamedChild(i)
		decl := unwrapDecl(child)
		kind := decl.Kind()

		switch {
		case isContainerKind(kind):
			name := declName(decl, e.src, kind)
			childPath := appendPath(path, name)
			body := decl.ChildByFieldName("body")
			if body == nil {
				e.emitTo(int(child.EndByte()), childPath, TypeStructural)
				continue
			}
			e.emitTo(headerEnd(body, e.lang), childPath, TypeStructural)
			e.container(body, childPath)
			e.emitTo(int(child.EndByte()), childPath, TypeStructural)

		case isStructuralLeafKind(kind):
			name := declName(decl, e.src, kind)
			e.emitTo(int(child.EndByte()), appendPath(path, name), TypeStructural)

		case isFunctionKind(kind):
			name := declName(decl, e.src, kind)
			e.emitTo(int(child.EndByte()), appendPath(path, name), TypeContent)

		case isFunctionVariable(decl):
			name := variableName(decl, e.src)
			e.emitTo(int(child.EndByte()), appendPath(path, name), TypeContent)
		}
		// anything else accumulates into the next boundary chunk
	}
}

// emitTo closes the pending chunk at the given byte offset.
func (e *sourceEmitter) emitTo(end int, path []string, boundary string) {
	if end <= e.mark {
		return
	}
	content := e.src[e.mark:end]
	e.mark = end
	types := []string{TypeCode, boundary}
	if len(content) > e.opts.MaxSize {
		// Oversized body: line-split, each part keeping the parent path
		// with an ordinal suffix.
		for i, part := range e.text.pieces(content, 0) {
			sub := appendPath(path, fmt.Sprintf("#%d", i+1))
			e.chunks = append(e.chunks, models.Chunk{
				Types:   types,
				Content: part,
				Section: models.SectionInfo{Level: len(sub), Path: sub},
			})
		}
		return
	}
	e.chunks = append(e.chunks, models.Chunk{
		Types:   types,
		Content: content,
		Section: models.SectionInfo{Level: len(path), Path: path},
	})
}

func (e *sourceEmitter) flushTail(path []string) {
	if e.mark >= len(e.src) {
		return
	}
	content := e.src[e.mark:]
	if strings.TrimSpace(content) == "" && len(e.chunks) > 0 {
		e.mark = len(e.src)
		e.chunks[len(e.chunks)-1].Content += content
		return
	}
	e.emitTo(len(e.src), path, TypeContent)
}

// unwrapDecl looks through transparent wrappers so classification sees the
// real declaration while chunk ranges still cover the wrapper.
func unwrapDecl(n *tree_sitter.Node) *tree_sitter.Node {
	switch n.Kind() {
	case "export_statement":
		if d := n.ChildByFieldName("declaration"); d != nil {
			return unwrapDecl(d)
		}
	case "decorated_definition":
		if d := n.ChildByFieldName("definition"); d != nil {
			return unwrapDecl(d)
		}
	case "ambient_declaration":
		count := n.NamedChildCount()
		for i := uint(0); i < count; i++ {
			c := n.NamedChild(i)
			if c.Kind() != "comment" {
				return unwrapDecl(c)
			}
		}
	}
	return n
}

func isContainerKind(kind string) bool {
	switch kind {
	case "class_declaration", "abstract_class_declaration", "class_definition",
		"internal_module", "module":
		return true
	}
	return false
}

func isStructuralLeafKind(kind string) bool {
	switch kind {
	case "interface_declaration", "enum_declaration", "type_alias_declaration":
		return true
	}
	return false
}

func isFunctionKind(kind string) bool {
	switch kind {
	case "function_declaration", "generator_function_declaration",
		"method_definition", "function_definition":
		return true
	}
	return false
}

// isFunctionVariable reports whether a variable statement binds a function
// value (const f = () => {...}).
func isFunctionVariable(n *tree_sitter.Node) bool {
	kind := n.Kind()
	if kind != "lexical_declaration" && kind != "variable_declaration" {
		return false
	}
	count := n.NamedChildCount()
	for i := uint(0); i < count; i++ {
		d := n.NamedChild(i)
		if d.Kind() != "variable_declarator" {
			continue
		}
		if v := d.ChildByFieldName("value"); v != nil {
			switch v.Kind() {
			case "arrow_function", "function_expression", "generator_function", "function":
				return true
			}
		}
	}
	return false
}

func variableName(n *tree_sitter.Node, src string) string {
	count := n.NamedChildCount()
	for i := uint(0); i < count; i++ {
		d := n.NamedChild(i)
		if d.Kind() != "variable_declarator" {
			continue
		}
		if nm := d.ChildByFieldName("name"); nm != nil {
			return nm.Utf8Text([]byte(src))
		}
	}
	return n.Kind()
}

func declName(n *tree_sitter.Node, src string, kind string) string {
	if nm := n.ChildByFieldName("name"); nm != nil {
		return nm.Utf8Text([]byte(src))
	}
	return kind
}

// headerEnd returns the offset where a container's header chunk ends: just
// past the opening brace for brace languages, at the body start for Python.
func headerEnd(body *tree_sitter.Node, lang Language) int {
	if lang == LangPython {
		return int(body.StartByte())
	}
	return int(body.StartByte()) + 1
}
