package embeddings

import "fmt"

// EmbeddingError is a provider failure after internal retries. It is fatal
// to the page insert that requested the embedding.
type EmbeddingError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("embedding provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
