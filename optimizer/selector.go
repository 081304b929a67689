package optimizer

import (
	"strings"

	"github.com/BaSui01/promptgate/types"
	"go.uber.org/zap"
)

// verboseCues are phrases whose presence marks a prompt as verbose
// enough to send straight to the compression strategy.
var verboseCues = []string{
	"please note that",
	"as mentioned above",
	"as previously mentioned",
	"it should be noted",
	"i would like you to",
	"could you please",
	"thank you in advance",
}

// selectionInput carries everything a rule may inspect: the request,
// its token estimate, and session-level constraints merged in.
type selectionInput struct {
	req             types.OptimizationRequest
	promptLower     string
	estimatedTokens int64
	constraints     []string
}

type selectionRule struct {
	name     string
	strategy types.Strategy
	matches  func(in selectionInput) bool
}

// StrategySelector picks an optimization strategy by evaluating a fixed
// rule chain in order; the first matching rule wins. An explicit
// strategy on the request bypasses the chain entirely.
type StrategySelector struct {
	rules         []selectionRule
	catalog       *TemplateCatalog
	templateLimit int64
	logger        *zap.Logger
}

// NewStrategySelector builds the rule chain. templateLimit is the token
// estimate below which short prompts qualify for template rendering.
func NewStrategySelector(catalog *TemplateCatalog, templateLimit int64, logger *zap.Logger) *StrategySelector {
	if templateLimit <= 0 {
		templateLimit = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StrategySelector{
		catalog:       catalog,
		templateLimit: templateLimit,
		logger:        logger.With(zap.String("component", "strategy_selector")),
	}
	s.rules = []selectionRule{
		{
			name:     "verbose-cues",
			strategy: types.StrategyCompression,
			matches: func(in selectionInput) bool {
				for _, cue := range verboseCues {
					if strings.Contains(in.promptLower, cue) {
						return true
					}
				}
				return false
			},
		},
		{
			name:     "short-cataloged-tool",
			strategy: types.StrategyTemplateBase,
			matches: func(in selectionInput) bool {
				return s.catalog != nil &&
					s.catalog.HasTemplate(in.req.ToolName, in.req.TaskType) &&
					in.estimatedTokens < s.templateLimit &&
					!strings.Contains(in.promptLower, "context")
			},
		},
		{
			name:     "constrained-planning",
			strategy: types.StrategyContextAware,
			matches: func(in selectionInput) bool {
				return in.req.TaskType == types.TaskPlanning && len(in.constraints) > 0
			},
		},
		{
			name:     "immediate-deadline",
			strategy: types.StrategyCompression,
			matches: func(in selectionInput) bool {
				return in.req.TimeConstraint == types.TimeImmediate
			},
		},
	}
	return s
}

// Select returns the strategy for the request plus the name of the rule
// that fired ("default" for the adaptive fall-through).
func (s *StrategySelector) Select(req types.OptimizationRequest, estimatedTokens int64, sessionConstraints []string) (types.Strategy, string) {
	constraints := req.Constraints
	if len(constraints) == 0 {
		constraints = sessionConstraints
	}
	in := selectionInput{
		req:             req,
		promptLower:     strings.ToLower(req.OriginalPrompt),
		estimatedTokens: estimatedTokens,
		constraints:     constraints,
	}

	for _, rule := range s.rules {
		if rule.matches(in) {
			s.logger.Debug("strategy selected",
				zap.String("rule", rule.name),
				zap.String("strategy", string(rule.strategy)),
				zap.String("tool", req.ToolName),
			)
			return rule.strategy, rule.name
		}
	}
	return types.StrategyAdaptive, "default"
}
