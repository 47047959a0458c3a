package search

import (
	"sort"
	"strings"

	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/splitter"
)

const (
	maxPrecedingSiblings = 2
	maxFollowingSiblings = 2
	maxChildren          = 5
)

// region is an assembled slice of one page's chunks.
type region struct {
	members []int
	content string
}

// buildRegion expands the matched chunk into readable context. Structured
// content (source, JSON) gets the hierarchical strategy so the region
// reconstructs a complete syntactic unit; prose gets the broad-context
// strategy centred on the match.
func buildRegion(chunks []models.Document, match int) region {
	if isStructured(chunks[match].Metadata.Types) {
		return hierarchicalRegion(chunks, match)
	}
	return broadRegion(chunks, match)
}

func isStructured(types []string) bool {
	for _, t := range types {
		switch t {
		case splitter.TypeCode, splitter.TypeJSON, splitter.TypeStructural:
			return true
		}
	}
	return false
}

// broadRegion includes the match's parent, up to two siblings on each side
// and up to five children, joined with blank lines in document order.
func broadRegion(chunks []models.Document, match int) region {
	matchPath := chunks[match].Metadata.Path
	include := map[int]bool{match: true}

	if parent := findParent(chunks, match); parent >= 0 {
		include[parent] = true
	}

	siblings := make([]int, 0)
	for i := range chunks {
		if i == match || include[i] {
			continue
		}
		if models.PathsEqual(chunks[i].Metadata.Path, matchPath) {
			siblings = append(siblings, i)
		}
	}
	taken := 0
	for i := len(siblings) - 1; i >= 0 && taken < maxPrecedingSiblings; i-- {
		if siblings[i] < match {
			include[siblings[i]] = true
			taken++
		}
	}
	taken = 0
	for _, i := range siblings {
		if i > match && taken < maxFollowingSiblings {
			include[i] = true
			taken++
		}
	}

	children := 0
	for i := range chunks {
		if include[i] || children >= maxChildren {
			continue
		}
		p := chunks[i].Metadata.Path
		if len(p) > len(matchPath) && models.IsPathPrefix(matchPath, p) {
			include[i] = true
			children++
		}
	}

	members := sortedMembers(include)
	parts := make([]string, len(members))
	for i, idx := range members {
		parts[i] = chunks[idx].Content
	}
	return region{members: members, content: strings.Join(parts, "\n\n")}
}

// findParent locates the nearest preceding chunk that encloses the match:
// either a strictly shorter path prefix, or a heading chunk carrying the
// same path (markdown headings name the section they open).
func findParent(chunks []models.Document, match int) int {
	matchPath := chunks[match].Metadata.Path
	for i := match - 1; i >= 0; i-- {
		p := chunks[i].Metadata.Path
		if len(p) < len(matchPath) && models.IsPathPrefix(p, matchPath) {
			return i
		}
		if models.PathsEqual(p, matchPath) && hasHeadingType(chunks[i].Metadata.Types) {
			return i
		}
	}
	return -1
}

func hasHeadingType(types []string) bool {
	for _, t := range types {
		if t == splitter.TypeHeading {
			return true
		}
	}
	return false
}

// hierarchicalRegion walks up to the structural root of the match and takes
// the root's whole subtree in document order. Plain concatenation is safe
// because structural splitters emit chunks that join back byte-exact.
func hierarchicalRegion(chunks []models.Document, match int) region {
	matchPath := chunks[match].Metadata.Path

	var root []string
	if len(matchPath) > 0 {
		root = matchPath[:1]
	}

	include := make(map[int]bool)
	for i := range chunks {
		if root == nil || models.IsPathPrefix(root, chunks[i].Metadata.Path) {
			include[i] = true
		}
	}
	include[match] = true

	members := sortedMembers(include)
	var b strings.Builder
	for _, idx := range members {
		b.WriteString(chunks[idx].Content)
	}
	return region{members: members, content: b.String()}
}

func sortedMembers(include map[int]bool) []int {
	members := make([]int, 0, len(include))
	for i := range include {
		members = append(members, i)
	}
	sort.Ints(members)
	return members
}
