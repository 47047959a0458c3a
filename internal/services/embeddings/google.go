package embeddings

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

// GoogleProvider generates embeddings through the Gemini API.
type GoogleProvider struct {
	client    *genai.Client
	model     string
	dimension int
	logger    arbor.ILogger
}

func NewGoogleProvider(ctx context.Context, apiKey, model string, dimension int, logger arbor.ILogger) (*GoogleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &GoogleProvider{client: client, model: model, dimension: dimension, logger: logger}, nil
}

func (p *GoogleProvider) ModelName() string { return p.model }
func (p *GoogleProvider) Dimension() int    { return p.dimension }
func (p *GoogleProvider) IsAvailable() bool { return p.client != nil && p.model != "" }

func (p *GoogleProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	outputDim := int32(p.dimension)
	config := &genai.EmbedContentConfig{OutputDimensionality: &outputDim}

	out := make([][]float32, 0, len(texts))
	for _, batch := range batchTexts(texts) {
		contents := make([]*genai.Content, len(batch))
		for i, t := range batch {
			contents[i] = genai.NewContentFromText(t, genai.RoleUser)
		}
		result, err := p.client.Models.EmbedContent(ctx, p.model, contents, config)
		if err != nil {
			return nil, &EmbeddingError{Provider: "google", Err: err}
		}
		if result == nil || len(result.Embeddings) != len(batch) {
			got := 0
			if result != nil {
				got = len(result.Embeddings)
			}
			return nil, &EmbeddingError{
				Provider: "google",
				Err:      fmt.Errorf("expected %d embeddings, got %d", len(batch), got),
			}
		}
		for _, e := range result.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

func (p *GoogleProvider) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := p.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
