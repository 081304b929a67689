package optimizer

import (
	"strings"
	"testing"

	"github.com/BaSui01/promptgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSelector(t *testing.T) *StrategySelector {
	t.Helper()
	catalog := NewTemplateCatalog(zaptest.NewLogger(t))
	require.NoError(t, catalog.Register(testTemplate("rev-1", "review", types.TaskAnalysis, 80)))
	return NewStrategySelector(catalog, 100, zaptest.NewLogger(t))
}

func TestSelector_VerboseCuesWinFirst(t *testing.T) {
	s := newTestSelector(t)

	// 冗长线索优先于一切后续规则，包括模板资格
	strategy, rule := s.Select(types.OptimizationRequest{
		ToolName:       "review",
		TaskType:       types.TaskAnalysis,
		OriginalPrompt: "Please note that the build is broken",
	}, 10, nil)
	assert.Equal(t, types.StrategyCompression, strategy)
	assert.Equal(t, "verbose-cues", rule)
}

func TestSelector_TemplateForShortCatalogedPrompt(t *testing.T) {
	s := newTestSelector(t)

	strategy, rule := s.Select(types.OptimizationRequest{
		ToolName:       "review",
		TaskType:       types.TaskAnalysis,
		OriginalPrompt: "check the diff",
	}, 10, nil)
	assert.Equal(t, types.StrategyTemplateBase, strategy)
	assert.Equal(t, "short-cataloged-tool", rule)
}

func TestSelector_TemplateRuleGuards(t *testing.T) {
	s := newTestSelector(t)

	// 估算超出模板上限
	strategy, _ := s.Select(types.OptimizationRequest{
		ToolName:       "review",
		TaskType:       types.TaskAnalysis,
		OriginalPrompt: strings.Repeat("analyze this segment ", 30),
	}, 150, nil)
	assert.NotEqual(t, types.StrategyTemplateBase, strategy)

	// 提示词带 context 线索时跳过模板
	strategy, _ = s.Select(types.OptimizationRequest{
		ToolName:       "review",
		TaskType:       types.TaskAnalysis,
		OriginalPrompt: "use the context from the last run",
	}, 10, nil)
	assert.NotEqual(t, types.StrategyTemplateBase, strategy)

	// 未编目的工具不走模板
	strategy, _ = s.Select(types.OptimizationRequest{
		ToolName:       "unknown-tool",
		TaskType:       types.TaskAnalysis,
		OriginalPrompt: "check the diff",
	}, 10, nil)
	assert.NotEqual(t, types.StrategyTemplateBase, strategy)
}

func TestSelector_ConstrainedPlanning(t *testing.T) {
	s := newTestSelector(t)

	strategy, rule := s.Select(types.OptimizationRequest{
		ToolName:       "planner",
		TaskType:       types.TaskPlanning,
		OriginalPrompt: "plan the migration",
		Constraints:    []string{"zero downtime"},
	}, 10, nil)
	assert.Equal(t, types.StrategyContextAware, strategy)
	assert.Equal(t, "constrained-planning", rule)

	// 约束也可以来自会话记忆
	strategy, rule = s.Select(types.OptimizationRequest{
		ToolName:       "planner",
		TaskType:       types.TaskPlanning,
		OriginalPrompt: "plan the migration",
	}, 10, []string{"zero downtime"})
	assert.Equal(t, types.StrategyContextAware, strategy)
	assert.Equal(t, "constrained-planning", rule)

	// 无约束的规划不匹配本规则
	strategy, _ = s.Select(types.OptimizationRequest{
		ToolName:       "planner",
		TaskType:       types.TaskPlanning,
		OriginalPrompt: "plan the migration",
	}, 10, nil)
	assert.NotEqual(t, types.StrategyContextAware, strategy)
}

func TestSelector_ImmediateDeadline(t *testing.T) {
	s := newTestSelector(t)

	strategy, rule := s.Select(types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "draft the announcement",
		TimeConstraint: types.TimeImmediate,
	}, 10, nil)
	assert.Equal(t, types.StrategyCompression, strategy)
	assert.Equal(t, "immediate-deadline", rule)
}

func TestSelector_DefaultAdaptive(t *testing.T) {
	s := newTestSelector(t)

	strategy, rule := s.Select(types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "draft the announcement",
	}, 10, nil)
	assert.Equal(t, types.StrategyAdaptive, strategy)
	assert.Equal(t, "default", rule)
}

func TestSelector_RequestConstraintsTakePrecedence(t *testing.T) {
	s := newTestSelector(t)

	// 请求自带约束时不读会话约束
	strategy, _ := s.Select(types.OptimizationRequest{
		ToolName:       "planner",
		TaskType:       types.TaskPlanning,
		OriginalPrompt: "plan the rollout",
		Constraints:    []string{"budget cap"},
	}, 10, []string{"session constraint"})
	assert.Equal(t, types.StrategyContextAware, strategy)
}
