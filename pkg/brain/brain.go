package brain

import (
	"context"
	"log/slog"
	"time"

	"github.com/whytchat/core/pkg/embed"
)

// Brain produces a ContextPacket from a single query string. It holds no
// I/O state beyond an optional Embedder reference for the semantic
// fallback tier, and is safe to call concurrently from any caller.
type Brain struct {
	embedder   embed.Embedder
	classifier *semanticClassifier
}

// New builds a Brain. embedder may be nil, in which case the semantic
// fallback tier is skipped and unmatched queries stay Unknown. Returns
// an error to match the rest of the core's fallible constructors; Brain
// itself never fails to build, since the exemplar embeddings are
// computed lazily on first use rather than here.
func New(embedder embed.Embedder) (*Brain, error) {
	return &Brain{embedder: embedder, classifier: newSemanticClassifier()}, nil
}

// Analyze runs the full two-tier classification plus keyword extraction,
// complexity scoring, language detection, and the RAG decision.
func (b *Brain) Analyze(ctx context.Context, query string) ContextPacket {
	intent, confidence := classifyFastPath(query)

	if intent == IntentUnknown && b.embedder != nil {
		semanticIntent, semanticConfidence := b.classifier.classify(ctx, b.embedder, query)
		if semanticIntent != IntentUnknown {
			slog.Debug("brain: semantic fallback matched", "intent", semanticIntent, "score", semanticConfidence)
			intent, confidence = semanticIntent, semanticConfidence
		}
	}

	keywords := extractKeywords(query)
	complexity := computeComplexity(query)
	language := detectLanguage(query)
	useRAG := shouldUseRAG(intent, complexity, keywords)
	strategies := suggestStrategies(intent, language)

	return ContextPacket{
		Intent:              intent,
		IntentConfidence:    confidence,
		Keywords:            keywords,
		Complexity:          complexity,
		Language:            language,
		ShouldUseRAG:        useRAG,
		SuggestedStrategies: strategies,
		AnalyzedAt:          time.Now(),
	}
}
