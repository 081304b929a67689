package optimizer

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/BaSui01/promptgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

// panickingCounter 注入优化路径内的意外故障。
type panickingCounter struct{}

func (panickingCounter) Count(string) (int64, error) { panic("counter exploded") }
func (panickingCounter) Name() string                { return "panicking" }

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]types.OptimizationResult
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]types.OptimizationResult)}
}

func (f *fakeCache) Get(_ context.Context, key string) (*types.OptimizationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.entries[key]; ok {
		out := res
		return &out, nil
	}
	return nil, ErrCacheMiss
}

func (f *fakeCache) Set(_ context.Context, key string, result *types.OptimizationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = *result
	f.sets++
	return nil
}

// fixedLearner 总是推荐固定策略。
type fixedLearner struct {
	NopLearningHook
	strategy types.Strategy
}

func (l fixedLearner) RecommendStrategy(*SessionState, types.OptimizationRequest) types.Strategy {
	return l.strategy
}

func newTestOptimizer(t *testing.T, opts ...Option) *Optimizer {
	t.Helper()
	return New(DefaultConfig(), zaptest.NewLogger(t), opts...)
}

func TestOptimizer_CompressionViaVerboseCue(t *testing.T) {
	o := newTestOptimizer(t)

	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "assistant",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "Please note that I would like you to implement the function quickly.",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, types.StrategyCompression, result.Strategy)
	assert.Contains(t, result.OptimizedPrompt, "implement the function")
	assert.NotContains(t, strings.ToLower(result.OptimizedPrompt), "please note that")
	assert.Greater(t, result.TokenReduction, int64(0))
	assert.GreaterOrEqual(t, result.QualityScore, 70.0)
}

func TestOptimizer_ExplicitStrategyBypassesRules(t *testing.T) {
	o := newTestOptimizer(t)

	// 这个请求按规则会走模板，显式指定后必须走压缩
	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "code-review",
		TaskType:       types.TaskAnalysis,
		OriginalPrompt: "check pr 42",
		Strategy:       types.StrategyCompression,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StrategyCompression, result.Strategy)

	_, err = o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "x",
		OriginalPrompt: "y",
		Strategy:       types.Strategy("warp"),
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestOptimizer_TemplateFlow(t *testing.T) {
	o := newTestOptimizer(t)

	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "code-review",
		TaskType:       types.TaskAnalysis,
		OriginalPrompt: "check pr 42",
		SessionID:      "sess-tmpl",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, types.StrategyTemplateBase, result.Strategy)
	assert.Contains(t, result.OptimizedPrompt, "check pr 42")
	assert.Contains(t, result.OptimizedPrompt, "Review the following change")

	// 使用计数与会话模板列表同步更新
	var used int64
	for _, tmpl := range o.Catalog().Templates() {
		if tmpl.ID == "code-review-analysis-v1" {
			used = tmpl.UsageCount
		}
	}
	assert.Equal(t, int64(1), used)

	state, ok := o.Sessions().Get("sess-tmpl")
	require.True(t, ok)
	assert.Contains(t, state.TemplatesUsed, "code-review-analysis-v1")
}

func TestOptimizer_TemplateMissingFallsBackToAdaptive(t *testing.T) {
	o := newTestOptimizer(t)

	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "uncataloged-tool",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "build the index",
		Strategy:       types.StrategyTemplateBase,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, types.StrategyAdaptive, result.Strategy)
	assert.Equal(t, "build the index", result.OptimizedPrompt)
}

func TestOptimizer_ContextAware(t *testing.T) {
	o := newTestOptimizer(t)

	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "planner",
		TaskType:       types.TaskPlanning,
		OriginalPrompt: "design the rollout of the new storage engine",
		Constraints:    []string{"zero downtime", "zero downtime", "budget under 10k"},
		OutputFormat:   types.FormatMarkdown,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, types.StrategyContextAware, result.Strategy)
	assert.Contains(t, result.OptimizedPrompt, "Objective:")
	assert.Contains(t, result.OptimizedPrompt, "Constraints:")
	assert.Contains(t, result.OptimizedPrompt, "- zero downtime")
	assert.Contains(t, result.OptimizedPrompt, "- budget under 10k")
	assert.Contains(t, result.OptimizedPrompt, "markdown")
	// 重复约束去重
	assert.Equal(t, 1, strings.Count(result.OptimizedPrompt, "zero downtime"))
}

func TestOptimizer_AdaptivePassthrough(t *testing.T) {
	o := newTestOptimizer(t)

	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "draft the weekly summary",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, types.StrategyAdaptive, result.Strategy)
	assert.Equal(t, "draft the weekly summary", result.OptimizedPrompt)
	assert.Equal(t, int64(0), result.TokenReduction)
}

func TestOptimizer_AdaptiveCompressesLongPrompts(t *testing.T) {
	o := newTestOptimizer(t)

	long := strings.Repeat("The quarterly report should basically cover all the regional metrics in detail. ", 80)
	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: long,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, types.StrategyAdaptive, result.Strategy)
	assert.Greater(t, result.TokenReduction, int64(0))
	assert.NotContains(t, result.OptimizedPrompt, "basically")
}

func TestOptimizer_QualityGateFallback(t *testing.T) {
	o := newTestOptimizer(t)

	// 压缩掉提示词的绝大部分会触发过度压缩扣分，跌破默认阈值
	original := strings.Repeat("Could you please ", 40) + "analyze the log"
	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "analyzer",
		TaskType:       types.TaskAnalysis,
		OriginalPrompt: original,
		Strategy:       types.StrategyCompression,
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Reason, "quality score")
	require.NotNil(t, result.Fallback)
	assert.Equal(t, original, result.Fallback.Prompt)
	assert.Greater(t, result.Fallback.QualityScore, result.QualityScore)
}

func TestOptimizer_MaxTokensEnforced(t *testing.T) {
	o := newTestOptimizer(t)

	// 无法压缩到上限以下的请求判定失败
	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "summarize the incident timeline for the postmortem",
		MaxTokens:      3,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Reason, "max_tokens")
}

// 只要 success=true 且指定了 maxTokens，估算 Token 数不得超过上限。
func TestOptimizer_MaxTokensProperty(t *testing.T) {
	o := newTestOptimizer(t)

	rapid.Check(t, func(rt *rapid.T) {
		prompt := rapid.StringMatching(`[a-zA-Z ]{1,200}`).Draw(rt, "prompt")
		if strings.TrimSpace(prompt) == "" {
			return
		}
		maxTokens := rapid.Int64Range(1, 60).Draw(rt, "max_tokens")

		result, err := o.Optimize(context.Background(), types.OptimizationRequest{
			ToolName:       "writer",
			TaskType:       types.TaskGeneration,
			OriginalPrompt: prompt,
			MaxTokens:      maxTokens,
		})
		if err != nil {
			rt.Fatalf("optimize: %v", err)
		}
		if result.Success && result.EstimatedTokens > maxTokens {
			rt.Fatalf("estimated %d tokens exceeds max %d", result.EstimatedTokens, maxTokens)
		}
	})
}

func TestOptimizer_PanicConvertedToFailure(t *testing.T) {
	o := newTestOptimizer(t, WithCounter(panickingCounter{}))

	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "draft something",
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Reason, "optimization failed")
	assert.Equal(t, int64(1), o.Stats().Failures)
}

func TestOptimizer_ResultCache(t *testing.T) {
	cache := newFakeCache()
	o := newTestOptimizer(t, WithCache(cache))

	req := types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "draft the weekly summary",
	}

	first, err := o.Optimize(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.Equal(t, 1, cache.sets)

	second, err := o.Optimize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, int64(1), o.Stats().CacheHits)
}

// 同键请求无论是否在时间上重叠，管线都只执行一次：重叠的合并为
// 一次飞行，错开的命中首次回填的缓存。
func TestOptimizer_ConcurrentIdenticalRequestsComputeOnce(t *testing.T) {
	cache := newFakeCache()
	o := newTestOptimizer(t, WithCache(cache))

	req := types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "draft the weekly summary",
	}

	const callers = 8
	results := make([]types.OptimizationResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Optimize(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Success)
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, 1, cache.sets)

	stats := o.Stats()
	assert.Equal(t, int64(1), stats.TotalOptimizations)
	assert.Equal(t, int64(callers-1), stats.CacheHits)
}

func TestOptimizer_MLDrivenDelegation(t *testing.T) {
	o := newTestOptimizer(t, WithLearningHook(fixedLearner{strategy: types.StrategyCompression}))

	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "Could you please draft the release notes",
		Strategy:       types.StrategyMLDriven,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, types.StrategyMLDriven, result.Strategy)
	// 压缩确实被执行
	assert.NotContains(t, strings.ToLower(result.OptimizedPrompt), "could you please")
}

func TestOptimizer_MLDrivenWithoutRecommendation(t *testing.T) {
	o := newTestOptimizer(t)

	result, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "draft the release notes",
		Strategy:       types.StrategyMLDriven,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, types.StrategyMLDriven, result.Strategy)
	assert.Equal(t, "draft the release notes", result.OptimizedPrompt)
}

func TestOptimizer_EmptyPromptRejected(t *testing.T) {
	o := newTestOptimizer(t)

	_, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "writer",
		OriginalPrompt: "   ",
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestOptimizer_SessionRecorded(t *testing.T) {
	o := newTestOptimizer(t)

	_, err := o.Optimize(context.Background(), types.OptimizationRequest{
		ToolName:       "writer",
		TaskType:       types.TaskGeneration,
		OriginalPrompt: "draft the weekly summary",
		SessionID:      "sess-9",
	})
	require.NoError(t, err)

	state, ok := o.Sessions().Get("sess-9")
	require.True(t, ok)
	require.Len(t, state.History, 1)
	assert.Equal(t, types.StrategyAdaptive, state.History[0].Strategy)
	assert.True(t, state.History[0].Success)

	stats := o.Stats()
	assert.Equal(t, int64(1), stats.TotalOptimizations)
}
