package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/lectern/internal/models"
)

const tsClassFixture = `/**
 * Service wrapper.
 */
class Svc {
  /** Does a. */
  a() {
    return 1;
  }

  /** Does b. */
  b() {
    return 2;
  }
}
`

func splitSource(t *testing.T, lang Language, name, input string) []models.Chunk {
	t.Helper()
	s := NewSourceSplitter(lang, name, DefaultOptions())
	chunks, err := s.Split(input)
	require.NoError(t, err)
	return chunks
}

func TestSourceSplitterTypeScriptClass(t *testing.T) {
	chunks := splitSource(t, LangTypeScript, "File.ts", tsClassFixture)
	require.Len(t, chunks, 4)

	// header with the class JSDoc merged in
	assert.Contains(t, chunks[0].Content, "Service wrapper")
	assert.Contains(t, chunks[0].Content, "class Svc {")
	assert.Contains(t, chunks[0].Types, TypeStructural)
	assert.Equal(t, []string{"File.ts", "Svc"}, chunks[0].Section.Path)

	assert.Contains(t, chunks[1].Content, "Does a")
	assert.Contains(t, chunks[1].Content, "a() {")
	assert.Contains(t, chunks[1].Types, TypeContent)
	assert.Equal(t, []string{"File.ts", "Svc", "a"}, chunks[1].Section.Path)

	assert.Contains(t, chunks[2].Content, "Does b")
	assert.Equal(t, []string{"File.ts", "Svc", "b"}, chunks[2].Section.Path)

	assert.Contains(t, chunks[3].Content, "}")
	assert.Contains(t, chunks[3].Types, TypeStructural)
	assert.Equal(t, []string{"File.ts", "Svc"}, chunks[3].Section.Path)

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Content)
	}
	assert.Equal(t, tsClassFixture, sb.String())
}

func TestSourceSplitterLevelsMatchPaths(t *testing.T) {
	chunks := splitSource(t, LangTypeScript, "File.ts", tsClassFixture)
	for _, c := range chunks {
		assert.Equal(t, len(c.Section.Path), c.Section.Level)
		assert.Contains(t, c.Types, TypeCode)
	}
}

func TestSourceSplitterTopLevelFunctions(t *testing.T) {
	input := "export function alpha() {\n  return 1;\n}\n\nconst beta = () => 2;\n"
	chunks := splitSource(t, LangTypeScript, "util.ts", input)
	require.Len(t, chunks, 2)

	assert.Equal(t, []string{"util.ts", "alpha"}, chunks[0].Section.Path)
	assert.Contains(t, chunks[0].Content, "export function alpha")
	assert.Equal(t, []string{"util.ts", "beta"}, chunks[1].Section.Path)

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Content)
	}
	assert.Equal(t, input, sb.String())
}

func TestSourceSplitterPythonClass(t *testing.T) {
	input := "class Svc:\n    def a(self):\n        return 1\n\n    def b(self):\n        return 2\n"
	chunks := splitSource(t, LangPython, "svc.py", input)
	require.GreaterOrEqual(t, len(chunks), 3)

	assert.Equal(t, []string{"svc.py", "Svc"}, chunks[0].Section.Path)
	assert.Contains(t, chunks[0].Content, "class Svc:")

	var paths []string
	for _, c := range chunks {
		paths = append(paths, strings.Join(c.Section.Path, "/"))
	}
	assert.Contains(t, paths, "svc.py/Svc/a")
	assert.Contains(t, paths, "svc.py/Svc/b")

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Content)
	}
	assert.Equal(t, input, sb.String())
}

func TestSourceSplitterParseErrorFallsBackToText(t *testing.T) {
	input := "class {{{ not valid at all ]]]"
	chunks := splitSource(t, LangTypeScript, "bad.ts", input)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Contains(t, c.Types, TypeText)
	}
}

func TestSourceSplitterLargeFileHeadTailSplit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("function head() {\n  return 1;\n}\n")
	for sb.Len() < parserByteLimit+2048 {
		sb.WriteString("// filler line of commentary to inflate the file size\n")
	}
	input := sb.String()

	chunks := splitSource(t, LangJavaScript, "big.js", input)
	require.NotEmpty(t, chunks)

	var out strings.Builder
	for _, c := range chunks {
		out.WriteString(c.Content)
	}
	assert.Equal(t, input, out.String())
}

func TestSourceSplitterUnknownExtension(t *testing.T) {
	_, ok := LanguageForExtension("main.rs")
	assert.False(t, ok)
	lang, ok := LanguageForExtension("app.tsx")
	assert.True(t, ok)
	assert.Equal(t, LangTSX, lang)
}
