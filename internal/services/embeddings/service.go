package embeddings

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
)

// DisabledProvider is used when no embedding provider is configured.
// Indexing proceeds without vectors; search runs FTS-only.
type DisabledProvider struct{}

func (DisabledProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}
func (DisabledProvider) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return nil, nil
}
func (DisabledProvider) ModelName() string { return "" }
func (DisabledProvider) Dimension() int    { return 0 }
func (DisabledProvider) IsAvailable() bool { return false }

// NewProvider builds the configured embedding provider.
func NewProvider(ctx context.Context, cfg common.EmbeddingsConfig, logger arbor.ILogger) (interfaces.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimension, logger), nil
	case "google":
		return NewGoogleProvider(ctx, cfg.APIKey, cfg.Model, cfg.Dimension, logger)
	case "", "disabled":
		return DisabledProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}
