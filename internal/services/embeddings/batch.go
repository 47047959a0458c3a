package embeddings

// Batch limits imposed by embedding providers.
const (
	maxBatchItems = 100
	maxBatchChars = 50000
)

// batchTexts groups texts into provider-sized batches, keeping order. A
// single text longer than the character budget still gets its own batch.
func batchTexts(texts []string) [][]string {
	var batches [][]string
	var cur []string
	chars := 0
	for _, t := range texts {
		if len(cur) > 0 && (len(cur) >= maxBatchItems || chars+len(t) > maxBatchChars) {
			batches = append(batches, cur)
			cur = nil
			chars = 0
		}
		cur = append(cur, t)
		chars += len(t)
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}
