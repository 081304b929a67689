package tokenizer

import (
	"math"
	"unicode/utf8"
)

// HeuristicCounter is a character-count-based token estimator using the
// ceil(chars/4) approximation. It is explicitly not a real tokenizer;
// callers needing exactness should register a TiktokenCounter instead.
type HeuristicCounter struct {
	charsPerToken float64
}

// NewHeuristicCounter creates a heuristic counter. A non-positive ratio
// falls back to the default of 4 characters per token.
func NewHeuristicCounter(charsPerToken float64) *HeuristicCounter {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &HeuristicCounter{charsPerToken: charsPerToken}
}

// WithCharsPerToken overrides the chars-per-token ratio.
func (h *HeuristicCounter) WithCharsPerToken(ratio float64) *HeuristicCounter {
	if ratio > 0 {
		h.charsPerToken = ratio
	}
	return h
}

func (h *HeuristicCounter) Count(text string) (int64, error) {
	if text == "" {
		return 0, nil
	}
	chars := utf8.RuneCountInString(text)
	return int64(math.Ceil(float64(chars) / h.charsPerToken)), nil
}

func (h *HeuristicCounter) Name() string {
	return "heuristic"
}
