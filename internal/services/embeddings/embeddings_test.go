package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75, 0}
	blob := EncodeVector(vec)
	assert.Len(t, blob, 16)

	decoded, err := DecodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestVectorCodecLittleEndian(t *testing.T) {
	blob := EncodeVector([]float32{1.0})
	// 1.0 as IEEE-754 float32 is 0x3F800000, stored little-endian
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3F}, blob)
}

func TestDecodeVectorRejectsTruncatedBlob(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestBatchTextsItemLimit(t *testing.T) {
	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "x"
	}
	batches := batchTexts(texts)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 100)
	assert.Len(t, batches[1], 100)
	assert.Len(t, batches[2], 50)
}

func TestBatchTextsCharLimit(t *testing.T) {
	big := strings.Repeat("a", 30000)
	batches := batchTexts([]string{big, big, big})
	require.Len(t, batches, 3)
	for _, b := range batches {
		assert.Len(t, b, 1)
	}
}

func TestBatchTextsPreservesOrder(t *testing.T) {
	texts := []string{"a", "b", "c"}
	batches := batchTexts(texts)
	require.Len(t, batches, 1)
	assert.Equal(t, texts, batches[0])
}

func TestOpenAIProviderEmbeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := openAIEmbedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i), 1}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL+"/v1", "key", "text-embedding-3-small", 2, arbor.NewLogger())
	vectors, err := p.EmbedTexts(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 1}, vectors[0])
	assert.Equal(t, []float32{1, 1}, vectors[1])
}

func TestOpenAIProviderSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL+"/v1", "key", "nope", 2, arbor.NewLogger())
	_, err := p.EmbedTexts(context.Background(), []string{"x"})
	var ee *EmbeddingError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, http.StatusBadRequest, ee.StatusCode)
	assert.Contains(t, ee.Error(), "bad model")
}

func TestDisabledProviderReturnsNilVectors(t *testing.T) {
	p := DisabledProvider{}
	assert.False(t, p.IsAvailable())
	vectors, err := p.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Nil(t, vectors[0])

	q, err := p.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Nil(t, q)
}
