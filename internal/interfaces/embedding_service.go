package interfaces

import "context"

// EmbeddingProvider generates vector embeddings for indexing and querying.
// Implementations batch requests internally; a disabled provider returns
// nil vectors and reports IsAvailable false.
type EmbeddingProvider interface {
	// EmbedTexts generates one embedding per input text, in order
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Get model information
	ModelName() string
	Dimension() int

	// Check if embedding generation is configured and usable
	IsAvailable() bool
}
