package brain

import (
	"regexp"
	"strings"
)

var tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

var stopwords = buildStopwordSet(
	// English
	"the", "a", "an", "and", "or", "but", "is", "are", "was", "were", "be",
	"been", "being", "to", "of", "in", "on", "at", "for", "with", "by",
	"from", "as", "this", "that", "these", "those", "it", "its", "i", "you",
	"he", "she", "we", "they", "do", "does", "did", "have", "has", "had",
	"not", "no", "yes", "if", "then", "so", "than", "will", "would", "can",
	"could", "should",
	// French
	"le", "la", "les", "un", "une", "des", "et", "ou", "mais", "est", "sont",
	"etait", "etre", "a", "au", "aux", "de", "du", "dans", "sur", "pour",
	"avec", "par", "ce", "cette", "ces", "il", "elle", "nous", "vous", "ils",
	"elles", "ne", "pas", "oui", "non", "si", "donc", "que", "qui", "quoi",
)

func buildStopwordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

const defaultTopKeywords = 10

// extractKeywords lowercases, tokenizes on non-alphanumerics, drops
// stopwords and tokens of length <= 2, scores by term frequency
// normalized by token count, and returns the top-N by score.
func extractKeywords(query string) []Keyword {
	tokens := tokenSplit.Split(strings.ToLower(query), -1)

	counts := make(map[string]int)
	total := 0
	for _, tok := range tokens {
		if tok == "" || len(tok) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		counts[tok]++
		total++
	}
	if total == 0 {
		return nil
	}

	keywords := make([]Keyword, 0, len(counts))
	for term, count := range counts {
		keywords = append(keywords, Keyword{
			Term:  term,
			Score: float32(count) / float32(total),
		})
	}

	sortKeywordsDescending(keywords)
	if len(keywords) > defaultTopKeywords {
		keywords = keywords[:defaultTopKeywords]
	}
	return keywords
}

func sortKeywordsDescending(keywords []Keyword) {
	for i := 1; i < len(keywords); i++ {
		for j := i; j > 0 && (keywords[j].Score > keywords[j-1].Score ||
			(keywords[j].Score == keywords[j-1].Score && keywords[j].Term < keywords[j-1].Term)); j-- {
			keywords[j], keywords[j-1] = keywords[j-1], keywords[j]
		}
	}
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

var technicalTermPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(function|fonction|algorithm|algorithme)\b`),
	regexp.MustCompile(`(?i)\b(api|sdk|database|base de donnees)\b`),
	regexp.MustCompile(`(?i)\b(variable|parameter|parametre|argument)\b`),
	regexp.MustCompile(`(?i)\b(class|classe|interface|struct|structure)\b`),
	regexp.MustCompile(`(?i)\b(server|serveur|client|protocol|protocole)\b`),
}

// computeComplexity scores word count, sentence count, average word
// length, technical-term density, and nested-clause density, aggregated
// into a clamped [0,1] overall score.
func computeComplexity(query string) Complexity {
	words := strings.Fields(query)
	wordCount := len(words)

	sentences := sentenceSplit.Split(strings.TrimSpace(query), -1)
	sentenceCount := 0
	for _, s := range sentences {
		if strings.TrimSpace(s) != "" {
			sentenceCount++
		}
	}
	if sentenceCount == 0 {
		sentenceCount = 1
	}

	var totalLen int
	for _, w := range words {
		totalLen += len([]rune(w))
	}
	avgLen := float32(0)
	if wordCount > 0 {
		avgLen = float32(totalLen) / float32(wordCount)
	}

	technical := 0
	for _, pattern := range technicalTermPatterns {
		technical += len(pattern.FindAllString(query, -1))
	}

	nested := strings.Count(query, ",") + strings.Count(query, ";")

	overall := 0.2*float32(wordCount)/100 +
		0.2*avgLen/10 +
		0.3*float32(technical)/5 +
		0.3*float32(nested)/3
	overall = clamp01(overall)

	return Complexity{
		Overall:        overall,
		WordCount:      wordCount,
		SentenceCount:  sentenceCount,
		AvgWordLength:  avgLen,
		TechnicalTerms: technical,
		NestedClauses:  nested,
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var frenchAnchors = []string{
	" le ", " la ", " les ", " un ", " une ", " des ", " est ", " et ",
	" pour ", " avec ", " dans ", " que ", " qui ", " pas ", " vous ",
	" je ", " nous ", " bonjour ", " merci ",
}

// detectLanguage counts hits against a list of French function-word
// anchors; two or more hits selects French, otherwise English.
func detectLanguage(query string) Language {
	padded := " " + strings.ToLower(query) + " "
	hits := 0
	for _, anchor := range frenchAnchors {
		if strings.Contains(padded, anchor) {
			hits++
			if hits >= 2 {
				return LanguageFrench
			}
		}
	}
	return LanguageEnglish
}

var ragKeywordTriggers = buildStopwordSet("code", "function", "api", "data", "file", "document")

// shouldUseRAG decides whether the turn should attempt retrieval.
func shouldUseRAG(intent Intent, complexity Complexity, keywords []Keyword) bool {
	switch intent {
	case IntentGreeting, IntentFarewell:
		return false
	case IntentQuestion, IntentAnalysis, IntentExplanation:
		return true
	}
	if complexity.Overall > 0.6 {
		return true
	}
	for _, kw := range keywords {
		if _, ok := ragKeywordTriggers[kw.Term]; ok {
			return true
		}
	}
	return false
}

// suggestStrategies offers lightweight retrieval/response hints tied to
// the detected intent; purely advisory, consumed by the Supervisor when
// composing its system prompt.
func suggestStrategies(intent Intent, language Language) []string {
	var strategies []string
	switch intent {
	case IntentCodeRequest:
		strategies = append(strategies, "code_quality_guidance")
	case IntentTranslation:
		strategies = append(strategies, "preserve_source_meaning")
	case IntentAnalysis, IntentExplanation:
		strategies = append(strategies, "structured_reasoning")
	}
	if language == LanguageFrench {
		strategies = append(strategies, "respond_in_french")
	}
	return strategies
}
