package brain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBrain(t *testing.T) *Brain {
	t.Helper()
	b, err := New(nil)
	require.NoError(t, err)
	return b
}

func TestGreetingIsFrenchAndSkipsRAG(t *testing.T) {
	b := newTestBrain(t)
	packet := b.Analyze(context.Background(), "Bonjour")

	assert.Equal(t, IntentGreeting, packet.Intent)
	assert.Equal(t, LanguageFrench, packet.Language)
	assert.False(t, packet.ShouldUseRAG)
}

func TestQuestionTriggersRAG(t *testing.T) {
	b := newTestBrain(t)
	packet := b.Analyze(context.Background(), "What is the secret code in the document?")

	assert.Equal(t, IntentQuestion, packet.Intent)
	assert.True(t, packet.ShouldUseRAG)
}

func TestCodeRequestDetected(t *testing.T) {
	b := newTestBrain(t)
	packet := b.Analyze(context.Background(), "write a function that sorts a list of integers")
	assert.Equal(t, IntentCodeRequest, packet.Intent)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	b := newTestBrain(t)
	a := b.Analyze(context.Background(), "Explain how recursion works in programming")
	c := b.Analyze(context.Background(), "Explain how recursion works in programming")

	assert.Equal(t, a.Intent, c.Intent)
	assert.Equal(t, a.IntentConfidence, c.IntentConfidence)
	assert.Equal(t, a.Keywords, c.Keywords)
	assert.Equal(t, a.Complexity, c.Complexity)
	assert.Equal(t, a.Language, c.Language)
	assert.Equal(t, a.ShouldUseRAG, c.ShouldUseRAG)
}

func TestKeywordExtractionDropsStopwordsAndShortTokens(t *testing.T) {
	keywords := extractKeywords("the function and the api are in a file")
	var terms []string
	for _, kw := range keywords {
		terms = append(terms, kw.Term)
	}
	assert.Contains(t, terms, "function")
	assert.Contains(t, terms, "api")
	assert.Contains(t, terms, "file")
	assert.NotContains(t, terms, "the")
	assert.NotContains(t, terms, "and")
	assert.NotContains(t, terms, "are")
}

func TestComplexityOverallIsClamped(t *testing.T) {
	c := computeComplexity("function, class, api, database, server; protocol; variable, parameter")
	assert.LessOrEqual(t, c.Overall, float32(1.0))
	assert.GreaterOrEqual(t, c.Overall, float32(0.0))
}
