package optimizer

import (
	"github.com/BaSui01/promptgate/types"
)

// LearningHook receives optimization outcomes for cross-session learning
// and may recommend a strategy for ml-driven requests. Implementations
// must be safe for concurrent use and must not block.
type LearningHook interface {
	// RecommendStrategy returns the strategy a learned model would pick
	// for the request, or empty when it has no recommendation.
	RecommendStrategy(session *SessionState, req types.OptimizationRequest) types.Strategy

	// OnTemplateUsed is invoked after a template application succeeds.
	OnTemplateUsed(sessionID string, tmpl types.TemplateMetadata)

	// OnResult is invoked after every completed optimization.
	OnResult(sessionID string, result types.OptimizationResult)
}

// NopLearningHook is the default LearningHook: it never recommends a
// strategy and discards all signals.
type NopLearningHook struct{}

func (NopLearningHook) RecommendStrategy(*SessionState, types.OptimizationRequest) types.Strategy {
	return ""
}

func (NopLearningHook) OnTemplateUsed(string, types.TemplateMetadata) {}

func (NopLearningHook) OnResult(string, types.OptimizationResult) {}
