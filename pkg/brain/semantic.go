package brain

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/whytchat/core/pkg/embed"
)

// semanticThreshold is the cosine similarity an exemplar embedding must
// clear for the fallback classifier to accept it instead of Unknown.
const semanticThreshold = 0.5

// semanticClassifier is the fallback tier: compute a query embedding and
// compare its cosine similarity against pre-computed exemplar
// embeddings, one per intent. Exemplar embeddings are built lazily, on
// the first classify call, and cached from then on.
type semanticClassifier struct {
	mu      sync.Mutex
	built   bool
	intents []Intent
	vectors [][]float32
}

func newSemanticClassifier() *semanticClassifier {
	return &semanticClassifier{}
}

// classify embeds query and returns the nearest exemplar's intent if its
// cosine similarity clears semanticThreshold, else (IntentUnknown, 0.0).
// This tier runs only when embedder is non-nil, per the "only when an
// Embedder is available" gate.
func (c *semanticClassifier) classify(ctx context.Context, embedder embed.Embedder, query string) (Intent, float32) {
	if embedder == nil {
		return IntentUnknown, 0.0
	}

	intents, vectors, err := c.exemplarVectors(ctx, embedder)
	if err != nil {
		slog.Warn("brain: building exemplar embeddings", "error", err)
		return IntentUnknown, 0.0
	}

	queryVecs, err := embedder.Embed(ctx, []string{query})
	if err != nil || len(queryVecs) != 1 {
		slog.Warn("brain: embedding query for semantic fallback", "error", err)
		return IntentUnknown, 0.0
	}
	queryVec := queryVecs[0]

	bestIntent := IntentUnknown
	var bestScore float32
	for i, vec := range vectors {
		if score := cosineSimilarity(queryVec, vec); score > bestScore {
			bestScore = score
			bestIntent = intents[i]
		}
	}

	if bestScore < semanticThreshold {
		return IntentUnknown, 0.0
	}
	return bestIntent, bestScore
}

// exemplarVectors returns the cached exemplar embeddings, building them
// on first use.
func (c *semanticClassifier) exemplarVectors(ctx context.Context, embedder embed.Embedder) ([]Intent, [][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return c.intents, c.vectors, nil
	}

	intents := make([]Intent, 0, len(exemplars))
	texts := make([]string, 0, len(exemplars))
	for intent, text := range exemplars {
		intents = append(intents, intent)
		texts = append(texts, text)
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, nil, err
	}

	c.intents = intents
	c.vectors = vectors
	c.built = true
	return c.intents, c.vectors, nil
}

// cosineSimilarity returns 0 for mismatched or empty vectors instead of
// NaN/panicking, so a malformed embedding degrades to "no match" rather
// than corrupting the best-score comparison.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}
