package optimizer

import (
	"strings"

	"github.com/BaSui01/promptgate/tokenizer"
)

// actionKeywords are intent-bearing verbs whose survival through an
// optimization indicates the prompt's task was preserved.
var actionKeywords = []string{"implement", "create", "build", "design", "analyze", "optimize"}

const (
	qualityBase          = 85.0
	keptRatioBonus       = 5.0
	keywordBonus         = 10.0
	overCompressionFloor = 0.3
)

// ScoreQuality estimates how much of the original prompt's intent an
// optimized variant retains, on a 0-100 scale.
//
// The score starts at a base of 85 and is adjusted by the kept-token
// ratio: compressing away more than 70% of the prompt is penalized in
// proportion to the overshoot, while a moderate 0.5-0.8 kept ratio earns
// a small bonus. Preserving every action keyword present in the original
// adds a flat bonus. The result is clamped to [0, 100].
func ScoreQuality(original, optimized string, counter tokenizer.Counter) float64 {
	origTokens := countOrEstimate(original, counter)
	optTokens := countOrEstimate(optimized, counter)

	ratio := 1.0
	if origTokens > 0 {
		ratio = float64(optTokens) / float64(origTokens)
	}

	score := qualityBase
	switch {
	case ratio < overCompressionFloor:
		score -= (overCompressionFloor - ratio) * 100
	case ratio >= 0.5 && ratio <= 0.8:
		score += keptRatioBonus
	}

	if keywordsPreserved(original, optimized) {
		score += keywordBonus
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// keywordsPreserved reports whether the optimized text retains every
// action keyword the original contains. Originals without any action
// keyword earn no bonus.
func keywordsPreserved(original, optimized string) bool {
	origLower := strings.ToLower(original)
	optLower := strings.ToLower(optimized)

	found := false
	for _, kw := range actionKeywords {
		if !strings.Contains(origLower, kw) {
			continue
		}
		found = true
		if !strings.Contains(optLower, kw) {
			return false
		}
	}
	return found
}

func countOrEstimate(text string, counter tokenizer.Counter) int64 {
	if counter != nil {
		if n, err := counter.Count(text); err == nil {
			return n
		}
	}
	n, _ := tokenizer.NewHeuristicCounter(0).Count(text)
	return n
}
