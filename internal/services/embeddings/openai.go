package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// OpenAIProvider talks to any OpenAI-compatible /v1/embeddings endpoint.
type OpenAIProvider struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
	logger    arbor.ILogger
}

func NewOpenAIProvider(baseURL, apiKey, model string, dimension int, logger arbor.ILogger) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    logger,
	}
}

func (p *OpenAIProvider) ModelName() string { return p.model }
func (p *OpenAIProvider) Dimension() int    { return p.dimension }
func (p *OpenAIProvider) IsAvailable() bool { return p.model != "" && p.apiKey != "" }

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, batch := range batchTexts(texts) {
		vectors, err := p.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (p *OpenAIProvider) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := p.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	payload, err := json.Marshal(openAIEmbedRequest{Model: p.model, Input: batch, Dimensions: p.dimension})
	if err != nil {
		return nil, &EmbeddingError{Provider: "openai", Err: err}
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		vectors, status, err := p.post(ctx, payload, len(batch))
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if status != 429 && status < 500 {
			break
		}
		p.logger.Debug().Int("status", status).Int("attempt", attempt+1).Msg("Retrying embedding request")
	}
	return nil, lastErr
}

func (p *OpenAIProvider) post(ctx context.Context, payload []byte, expect int) ([][]float32, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, &EmbeddingError{Provider: "openai", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, &EmbeddingError{Provider: "openai", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &EmbeddingError{Provider: "openai", StatusCode: resp.StatusCode, Err: err}
	}

	var parsed openAIEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, resp.StatusCode, &EmbeddingError{Provider: "openai", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		msg := "request failed"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, resp.StatusCode, &EmbeddingError{Provider: "openai", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", msg)}
	}
	if len(parsed.Data) != expect {
		return nil, resp.StatusCode, &EmbeddingError{
			Provider: "openai",
			Err:      fmt.Errorf("expected %d embeddings, got %d", expect, len(parsed.Data)),
		}
	}

	out := make([][]float32, expect)
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= expect {
			return nil, resp.StatusCode, &EmbeddingError{Provider: "openai", Err: fmt.Errorf("embedding index %d out of range", d.Index)}
		}
		out[d.Index] = d.Embedding
	}
	return out, resp.StatusCode, nil
}
