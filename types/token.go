package types

// TokenUsage aggregates token counts and cost for a completed request.
type TokenUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	Cost         float64 `json:"cost"`
}

// Add accumulates another usage record into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.Cost += other.Cost
}

// UsageVariance captures the gap between an estimate and the reconciled
// actuals for one request. Positive deltas mean the estimate was low.
type UsageVariance struct {
	RequestID       string  `json:"request_id"`
	EstimatedTokens int64   `json:"estimated_tokens"`
	ActualTokens    int64   `json:"actual_tokens"`
	TokenDelta      int64   `json:"token_delta"`
	EstimatedCost   float64 `json:"estimated_cost"`
	ActualCost      float64 `json:"actual_cost"`
	CostDelta       float64 `json:"cost_delta"`
}
