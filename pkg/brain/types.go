// Package brain implements the Brain component: intent classification
// (fast regex, semantic fallback), keyword extraction, complexity scoring,
// language detection, and the RAG-usage decision. It holds no I/O state
// and is safe to invoke from any caller.
package brain

import "time"

// Intent is the closed taxonomy of conversational intents.
type Intent string

const (
	IntentGreeting    Intent = "greeting"
	IntentFarewell    Intent = "farewell"
	IntentQuestion    Intent = "question"
	IntentCommand     Intent = "command"
	IntentCodeRequest Intent = "code_request"
	IntentExplanation Intent = "explanation"
	IntentTranslation Intent = "translation"
	IntentAnalysis    Intent = "analysis"
	IntentCreative    Intent = "creative"
	IntentHelp        Intent = "help"
	IntentUnknown     Intent = "unknown"
)

// Language is the closed set of detected languages.
type Language string

const (
	LanguageFrench  Language = "fr"
	LanguageEnglish Language = "en"
)

// Complexity is the Brain's readability/difficulty scoring for a query.
type Complexity struct {
	Overall        float32 `json:"overall"`
	WordCount      int     `json:"word_count"`
	SentenceCount  int     `json:"sentence_count"`
	AvgWordLength  float32 `json:"avg_word_length"`
	TechnicalTerms int     `json:"technical_terms"`
	NestedClauses  int     `json:"nested_clauses"`
}

// Keyword is one extracted term and its normalized score.
type Keyword struct {
	Term  string  `json:"term"`
	Score float32 `json:"score"`
}

// ContextPacket is the Brain's structured analysis of a single query,
// produced fresh per turn.
type ContextPacket struct {
	Intent              Intent     `json:"intent"`
	IntentConfidence    float32    `json:"intent_confidence"`
	Keywords            []Keyword  `json:"keywords"`
	Complexity          Complexity `json:"complexity"`
	Language            Language   `json:"language"`
	ShouldUseRAG        bool       `json:"should_use_rag"`
	SuggestedStrategies []string   `json:"suggested_strategies"`
	AnalyzedAt          time.Time  `json:"analyzed_at"`
}
