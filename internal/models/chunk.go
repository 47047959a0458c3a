package models

// SectionInfo carries the hierarchical position of a chunk. Level denotes
// conceptual depth (0 = document root / unstructured); Path is the
// navigational ancestry, e.g. ["Chapter","Section"] for markdown,
// ["root","users","[0]","name"] for JSON, ["File.ts","Class","method"] for
// source code.
type SectionInfo struct {
	Level int      `json:"level"`
	Path  []string `json:"path"`
}

// Chunk is the unit every splitter emits. Concatenating a document's chunks
// in emission order reconstructs the original content (byte-exact for
// source/JSON/text; semantically exact for converted HTML).
type Chunk struct {
	Types   []string    `json:"types"`
	Content string      `json:"content"`
	Section SectionInfo `json:"section"`
}

// PathsEqual reports whether two chunk paths are identical.
func PathsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CommonPathPrefix returns the longest common prefix of two paths.
func CommonPathPrefix(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			break
		}
		out = append(out, a[i])
	}
	return out
}

// IsPathPrefix reports whether prefix is a (possibly equal) prefix of path.
func IsPathPrefix(prefix, path []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if prefix[i] != path[i] {
			return false
		}
	}
	return true
}
