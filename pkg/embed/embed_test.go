package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEmbeddingsServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		data := make([]map[string]any, len(body.Input))
		for i := range body.Input {
			vec := make([]float64, dims)
			for j := range vec {
				vec[j] = 0.01 * float64(i+j)
			}
			data[i] = map[string]any{"index": i, "embedding": vec, "object": "embedding"}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-embedder",
		})
	}))
}

func TestHTTPEmbedderBatchesInOneCall(t *testing.T) {
	srv := fakeEmbeddingsServer(t, Dimension)
	defer srv.Close()

	client := openai.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("test"))
	embedder := NewHTTPEmbedder(&client, "test-embedder")

	vectors, err := embedder.Embed(context.Background(), []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, Dimension)
	}
	assert.Equal(t, Dimension, embedder.Dimension())
}

func TestHTTPEmbedderDimensionMismatch(t *testing.T) {
	srv := fakeEmbeddingsServer(t, Dimension-1)
	defer srv.Close()

	client := openai.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("test"))
	embedder := NewHTTPEmbedder(&client, "test-embedder")

	_, err := embedder.Embed(context.Background(), []string{"alpha"})
	require.Error(t, err)
}

func TestEmbedEmptyInput(t *testing.T) {
	client := openai.NewClient(option.WithAPIKey("test"))
	embedder := NewHTTPEmbedder(&client, "test-embedder")

	vectors, err := embedder.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
