package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-labs/codeindex/pkg/pipeline"
)

func fakeEmbeddingsServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}

		data := make([]datum, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dims)
			for j := range vec {
				vec[j] = float32(i)
			}

			data[i] = datum{Object: "embedding", Embedding: vec, Index: i}
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-model",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		}))
	}))
}

func TestClient_EmbedReturnsOneVectorPerUnitInOrder(t *testing.T) {
	server := fakeEmbeddingsServer(t, 4)
	defer server.Close()

	client := New(Config{APIKey: "test", BaseURL: server.URL})

	units := []pipeline.EmbedUnit{{ID: "a", Text: "alpha"}, {ID: "b", Text: "beta"}}

	vectors, err := client.Embed(context.Background(), units)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, pipeline.Vector{0, 0, 0, 0}, vectors[0])
	assert.Equal(t, pipeline.Vector{1, 1, 1, 1}, vectors[1])
}

func TestClient_EmbedEmptyBatchIsNoop(t *testing.T) {
	client := New(Config{APIKey: "test"})

	vectors, err := client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestClient_EmbedServerErrorIsWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(Config{APIKey: "test", BaseURL: server.URL})

	_, err := client.Embed(context.Background(), []pipeline.EmbedUnit{{ID: "a", Text: "alpha"}})
	require.Error(t, err)
}
