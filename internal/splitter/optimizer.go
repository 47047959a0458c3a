package splitter

import "github.com/ternarybob/lectern/internal/models"

// Optimize merges adjacent small chunks to reduce fragmentation. Merging
// stops at the preferred size, never crosses an H1/H2 boundary once the
// minimum size is reached, and never produces a chunk above the maximum.
// Structural splitters (source, JSON) skip this pass.
func Optimize(chunks []models.Chunk, opts Options) []models.Chunk {
	opts = opts.withDefaults()
	if len(chunks) < 2 {
		return chunks
	}

	out := make([]models.Chunk, 0, len(chunks))
	cur := chunks[0]
	for _, next := range chunks[1:] {
		if canMerge(cur, next, opts) {
			cur = mergeChunks(cur, next)
			continue
		}
		out = append(out, cur)
		cur = next
	}
	out = append(out, cur)
	return out
}

func canMerge(cur, next models.Chunk, opts Options) bool {
	combined := len(cur.Content) + len(next.Content)
	if combined > opts.MaxSize {
		return false
	}
	if len(cur.Content) >= opts.PreferredSize {
		return false
	}
	// an H1/H2 starts a new section; stop merging as soon as the
	// current chunk is viable on its own
	if isMajorHeading(next) && len(cur.Content) >= opts.MinSize {
		return false
	}
	if combined <= opts.PreferredSize {
		return true
	}
	// Undersized chunks may overshoot the preferred size to avoid
	// fragments below the minimum.
	return len(cur.Content) < opts.MinSize
}

func isMajorHeading(c models.Chunk) bool {
	return hasType(c, TypeHeading) && c.Section.Level <= 2
}

func mergeChunks(a, b models.Chunk) models.Chunk {
	level := a.Section.Level
	if b.Section.Level < level {
		level = b.Section.Level
	}
	return models.Chunk{
		Types:   mergeTypes(a.Types, b.Types),
		Content: a.Content + b.Content,
		Section: models.SectionInfo{
			Level: level,
			Path:  mergePaths(a.Section.Path, b.Section.Path),
		},
	}
}

// mergePaths: identical paths stay, parent-child keeps the deeper path,
// siblings reduce to their common prefix, unrelated paths reduce to empty.
func mergePaths(a, b []string) []string {
	if models.PathsEqual(a, b) {
		return a
	}
	if models.IsPathPrefix(a, b) {
		return b
	}
	if models.IsPathPrefix(b, a) {
		return a
	}
	common := models.CommonPathPrefix(a, b)
	if len(common) > 0 {
		return common
	}
	return []string{}
}
