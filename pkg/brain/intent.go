package brain

import "regexp"

type intentPattern struct {
	intent  Intent
	pattern *regexp.Regexp
}

// fastPathPatterns is checked in order; the first match wins. Patterns
// cover both French and English phrasing, case-insensitively.
var fastPathPatterns = compileFastPath([]struct {
	intent Intent
	exprs  []string
}{
	{IntentGreeting, []string{
		`^\s*(bonjour|salut|coucou|bonsoir)\b`,
		`^\s*(hi|hello|hey|good morning|good evening)\b`,
	}},
	{IntentFarewell, []string{
		`\b(au revoir|a\s+bient[oô]t|bonne journ[ée]e|bonne soir[ée]e)\b`,
		`\b(goodbye|bye|see you|farewell|take care)\b`,
	}},
	{IntentCodeRequest, []string{
		`\b(ecris|g[ée]n[èe]re|code).{0,20}(fonction|programme|script|classe)\b`,
		`\b(write|generate|implement)\b.{0,20}\b(function|code|script|class|program)\b`,
	}},
	{IntentTranslation, []string{
		`\b(traduis|traduction)\b`,
		`\b(translate|translation)\b`,
	}},
	{IntentExplanation, []string{
		`\b(explique|explication)\b`,
		`\b(explain|clarify|what does .* mean)\b`,
	}},
	{IntentAnalysis, []string{
		`\b(analyse|compare|[ée]value)\b`,
		`\b(analy[sz]e|compare|evaluate)\b`,
	}},
	{IntentCreative, []string{
		`\b(invente|imagine|[ée]cris une histoire|poeme|po[eè]me)\b`,
		`\b(invent|imagine|write a story|poem)\b`,
	}},
	{IntentHelp, []string{
		`\b(aide[- ]moi|comment faire|j'ai besoin d'aide)\b`,
		`\b(help me|how do i|i need help)\b`,
	}},
	{IntentCommand, []string{
		`^\s*(fais|cr[ée]e|supprime|lance|ex[ée]cute)\b`,
		`^\s*(do|create|delete|run|execute|start|stop)\b`,
	}},
	{IntentQuestion, []string{
		`\?\s*$`,
		`^\s*(qui|que|quoi|quand|ou|o[uù]|pourquoi|comment|est[- ]ce que)\b`,
		`^\s*(who|what|when|where|why|how|is|are|do|does|can|could|would)\b`,
	}},
})

func compileFastPath(defs []struct {
	intent Intent
	exprs  []string
}) []intentPattern {
	var out []intentPattern
	for _, def := range defs {
		for _, expr := range def.exprs {
			out = append(out, intentPattern{
				intent:  def.intent,
				pattern: regexp.MustCompile(`(?i)` + expr),
			})
		}
	}
	return out
}

// classifyFastPath returns the first matching intent and confidence 1.0,
// or (IntentUnknown, 0.0) if nothing matched.
func classifyFastPath(query string) (Intent, float32) {
	for _, p := range fastPathPatterns {
		if p.pattern.MatchString(query) {
			return p.intent, 1.0
		}
	}
	return IntentUnknown, 0.0
}

// exemplars seeds the semantic fallback classifier: one representative
// string per intent, embedded once and cached by semanticClassifier.
var exemplars = map[Intent]string{
	IntentGreeting:    "hello there how are you doing today",
	IntentFarewell:    "goodbye see you later take care",
	IntentQuestion:    "what is the capital of this country",
	IntentCommand:     "create a new file and run the build",
	IntentCodeRequest: "write a function that sorts a list",
	IntentExplanation: "explain how this algorithm works in detail",
	IntentTranslation: "translate this sentence into french",
	IntentAnalysis:    "compare these two approaches and evaluate tradeoffs",
	IntentCreative:    "write a short story about a dragon",
	IntentHelp:        "i need help figuring out how to do this",
}
