// Package embed implements the Embedder capability: turning text into
// fixed-dimension vectors. The core ships one reference implementation
// that talks to a local OpenAI-compatible /v1/embeddings endpoint — the
// same loopback server family the LlmClient drives.
package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/whytchat/core/pkg/coreerr"
)

// Dimension is the fixed embedding size every Embedder in this core must
// produce.
const Dimension = 384

// Embedder turns a batch of texts into one vector per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint, batching
// the entire input slice into a single request per spec's "embed the
// entire batch in one call" rule.
type HTTPEmbedder struct {
	client *openai.Client
	model  string
}

// NewHTTPEmbedder builds an Embedder around an already-configured
// openai.Client (pointed at the local model server's loopback baseURL).
func NewHTTPEmbedder(client *openai.Client, model string) *HTTPEmbedder {
	return &HTTPEmbedder{client: client, model: model}
}

func (e *HTTPEmbedder) Dimension() int { return Dimension }

// ClientProvider returns an SDK client ready to call, spawning or
// reusing whatever subprocess backs it. Used by LazyHTTPEmbedder so the
// embedder doesn't need its own long-lived client.
type ClientProvider func(ctx context.Context) (*openai.Client, error)

// LazyHTTPEmbedder defers client acquisition to a ClientProvider on
// every call instead of holding one client for its whole lifetime.
// This is how the core shares the LlmClient subprocess's loopback
// server between chat completions and embeddings: the subprocess's
// bearer token rotates on every restart, so the embedder cannot cache
// a client across calls the way a dedicated embeddings server could.
type LazyHTTPEmbedder struct {
	provider ClientProvider
	model    string
}

// NewLazyHTTPEmbedder builds an Embedder that asks provider for a
// fresh client before each batch.
func NewLazyHTTPEmbedder(provider ClientProvider, model string) *LazyHTTPEmbedder {
	return &LazyHTTPEmbedder{provider: provider, model: model}
}

func (e *LazyHTTPEmbedder) Dimension() int { return Dimension }

func (e *LazyHTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := e.provider(ctx)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.EmbedderError, "acquiring embeddings client", err)
	}
	return NewHTTPEmbedder(client, e.model).Embed(ctx, texts)
}

// Embed submits the entire texts slice as one embeddings request and
// enforces the fixed dimension on every returned vector.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, coreerr.Wrap(coreerr.EmbedderError, "embeddings request", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, coreerr.New(coreerr.EmbedderError, fmt.Sprintf(
			"embeddings response returned %d vectors for %d inputs", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		if int(item.Index) < 0 || int(item.Index) >= len(vectors) {
			return nil, coreerr.New(coreerr.EmbedderError, "embeddings response index out of range")
		}
		if len(item.Embedding) != Dimension {
			return nil, coreerr.New(coreerr.EmbedderError, fmt.Sprintf(
				"embedding dimension mismatch: got %d, want %d", len(item.Embedding), Dimension))
		}
		vec := make([]float32, Dimension)
		for i, f := range item.Embedding {
			vec[i] = float32(f)
		}
		vectors[item.Index] = vec
	}

	return vectors, nil
}
