package types

import "testing"

func TestTokenUsage_Add(t *testing.T) {
	t.Parallel()

	var u TokenUsage
	u.Add(TokenUsage{InputTokens: 500, OutputTokens: 300, TotalTokens: 800, Cost: 0.000033})
	u.Add(TokenUsage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150, Cost: 0.000006})

	if u.InputTokens != 600 || u.OutputTokens != 350 || u.TotalTokens != 950 {
		t.Fatalf("unexpected totals: %+v", u)
	}
	if u.Cost < 0.0000389 || u.Cost > 0.0000391 {
		t.Fatalf("unexpected cost: %v", u.Cost)
	}
}
