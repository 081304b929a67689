package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/promptgate/tokenizer"
	"github.com/BaSui01/promptgate/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// 🎯 提示词优化引擎
// =============================================================================

// Config 优化引擎配置。
type Config struct {
	// DefaultQualityThreshold 请求未指定阈值时的质量下限
	DefaultQualityThreshold float64 `json:"default_quality_threshold" yaml:"default_quality_threshold"`
	// AdaptiveTokenLimit adaptive 策略触发压缩的 Token 规模
	AdaptiveTokenLimit int64 `json:"adaptive_token_limit" yaml:"adaptive_token_limit"`
	// TemplateTokenLimit 短提示词走模板策略的 Token 上限
	TemplateTokenLimit int64 `json:"template_token_limit" yaml:"template_token_limit"`
	// SessionHistoryLimit 单会话保留的历史条数
	SessionHistoryLimit int `json:"session_history_limit" yaml:"session_history_limit"`
}

// DefaultConfig 返回默认优化配置。
func DefaultConfig() Config {
	return Config{
		DefaultQualityThreshold: 70,
		AdaptiveTokenLimit:      1000,
		TemplateTokenLimit:      100,
		SessionHistoryLimit:     50,
	}
}

func (c *Config) normalize() {
	if c.DefaultQualityThreshold <= 0 || c.DefaultQualityThreshold > 100 {
		c.DefaultQualityThreshold = 70
	}
	if c.AdaptiveTokenLimit <= 0 {
		c.AdaptiveTokenLimit = 1000
	}
	if c.TemplateTokenLimit <= 0 {
		c.TemplateTokenLimit = 100
	}
	if c.SessionHistoryLimit <= 0 {
		c.SessionHistoryLimit = 50
	}
}

// Stats 优化引擎累计统计。
type Stats struct {
	TotalOptimizations int64   `json:"total_optimizations"`
	Failures           int64   `json:"failures"`
	CacheHits          int64   `json:"cache_hits"`
	TokensSaved        int64   `json:"tokens_saved"`
	AvgQualityScore    float64 `json:"avg_quality_score"`
}

// Option 配置可选依赖。
type Option func(*Optimizer)

// WithCounter 指定 Token 计数器，默认使用启发式计数。
func WithCounter(c tokenizer.Counter) Option {
	return func(o *Optimizer) {
		if c != nil {
			o.counter = c
		}
	}
}

// WithCatalog 指定模板目录，默认使用内置目录。
func WithCatalog(c *TemplateCatalog) Option {
	return func(o *Optimizer) {
		if c != nil {
			o.catalog = c
		}
	}
}

// WithCache 启用优化结果缓存。
func WithCache(c ResultCache) Option {
	return func(o *Optimizer) { o.cache = c }
}

// WithLearningHook 指定学习钩子，默认空操作。
func WithLearningHook(h LearningHook) Option {
	return func(o *Optimizer) {
		if h != nil {
			o.learner = h
		}
	}
}

// WithRules 覆盖压缩规则集。
func WithRules(rules []RewriteRule) Option {
	return func(o *Optimizer) { o.rules = rules }
}

// Optimizer 多策略提示词优化引擎。
type Optimizer struct {
	cfg        Config
	counter    tokenizer.Counter
	rules      []RewriteRule
	compressor *CompressionEngine
	catalog    *TemplateCatalog
	selector   *StrategySelector
	sessions   *SessionStore
	learner    LearningHook
	cache      ResultCache
	flight     singleflight.Group
	logger     *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New 创建优化引擎。零值配置字段回落到默认值。
func New(cfg Config, logger *zap.Logger, opts ...Option) *Optimizer {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Optimizer{
		cfg:     cfg,
		counter: tokenizer.NewHeuristicCounter(0),
		learner: NopLearningHook{},
		logger:  logger.With(zap.String("component", "optimizer")),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.catalog == nil {
		o.catalog = NewDefaultTemplateCatalog(logger)
	}
	o.compressor = NewCompressionEngine(o.rules, logger)
	o.selector = NewStrategySelector(o.catalog, cfg.TemplateTokenLimit, logger)
	o.sessions = NewSessionStore(cfg.SessionHistoryLimit, logger)
	return o
}

// Catalog 返回模板目录。
func (o *Optimizer) Catalog() *TemplateCatalog { return o.catalog }

// Sessions 返回会话存储。
func (o *Optimizer) Sessions() *SessionStore { return o.sessions }

// Stats 返回累计统计快照。
func (o *Optimizer) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// Optimize 对单个请求执行优化。
//
// 返回错误仅表示请求本身非法；优化管线内的一切意外（含 panic）都
// 转换为 Success=false 的结果。显式指定策略会绕过规则选择，这也是
// ml-driven 策略的唯一入口。配置缓存时，键相同的并发请求合并为
// 一次计算，追随者与缓存命中同样计入 CacheHits。
func (o *Optimizer) Optimize(ctx context.Context, req types.OptimizationRequest) (types.OptimizationResult, error) {
	if strings.TrimSpace(req.OriginalPrompt) == "" {
		return types.OptimizationResult{}, types.NewError(types.ErrInvalidRequest, "original_prompt must not be empty")
	}
	if req.Strategy != "" && !req.Strategy.Valid() {
		return types.OptimizationResult{}, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unknown strategy %q", req.Strategy))
	}

	if o.cache == nil {
		return o.optimizeOnce(req), nil
	}

	// 合并窗口与缓存键同构：首个调用者查缓存、计算并回填，
	// 期间到达的同键请求直接等待其结果
	key := CacheKey(req)
	var computed bool
	v, _, _ := o.flight.Do(key, func() (interface{}, error) {
		computed = true
		cached, cerr := o.cache.Get(ctx, key)
		switch {
		case cerr == nil && cached != nil:
			o.mu.Lock()
			o.stats.CacheHits++
			o.mu.Unlock()
			o.logger.Debug("optimization served from cache", zap.String("tool", req.ToolName))
			return *cached, nil
		case cerr != nil && !errors.Is(cerr, ErrCacheMiss):
			o.logger.Warn("result cache lookup failed", zap.Error(cerr))
		}

		result := o.optimizeOnce(req)
		if result.Success {
			if cerr := o.cache.Set(ctx, key, &result); cerr != nil {
				o.logger.Warn("result cache store failed", zap.Error(cerr))
			}
		}
		return result, nil
	})

	result := v.(types.OptimizationResult)
	if !computed {
		o.mu.Lock()
		o.stats.CacheHits++
		o.mu.Unlock()
		o.logger.Debug("optimization coalesced with in-flight request", zap.String("tool", req.ToolName))
	}
	return result, nil
}

// optimizeOnce 运行完整优化管线并记录结果，不触碰缓存。
func (o *Optimizer) optimizeOnce(req types.OptimizationRequest) (result types.OptimizationResult) {
	var chosen types.Strategy
	noted := false
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("optimization panicked",
				zap.Any("panic", r),
				zap.String("tool", req.ToolName),
				zap.String("strategy", string(chosen)),
			)
			result = types.OptimizationResult{
				Success:  false,
				Strategy: chosen,
				Reason:   fmt.Sprintf("optimization failed: %v", r),
			}
			if !noted {
				o.noteOutcome(req, result)
			}
		}
	}()

	var sessionConstraints []string
	if req.SessionID != "" {
		if len(req.Constraints) > 0 {
			o.sessions.SetConstraints(req.SessionID, req.Constraints)
		}
		if state, ok := o.sessions.Get(req.SessionID); ok {
			sessionConstraints = state.Constraints
		}
	}

	origTokens := o.count(req.OriginalPrompt)

	chosen = req.Strategy
	rule := "explicit"
	if chosen == "" {
		chosen, rule = o.selector.Select(req, origTokens, sessionConstraints)
	}

	result = o.execute(chosen, req, origTokens, sessionConstraints)

	// 显式 maxTokens 上限: 超出则追加压缩，仍超出则判定失败
	if result.Success && req.MaxTokens > 0 && result.EstimatedTokens > req.MaxTokens {
		squeezed := o.compressor.Compress(result.OptimizedPrompt)
		est := o.count(squeezed.Output)
		if est <= req.MaxTokens {
			result.OptimizedPrompt = squeezed.Output
			result.EstimatedTokens = est
			result.TokenReduction = origTokens - est
			result.QualityScore = ScoreQuality(req.OriginalPrompt, squeezed.Output, o.counter)
		} else {
			result.Success = false
			result.Reason = fmt.Sprintf("optimized prompt estimated at %d tokens exceeds max_tokens %d",
				est, req.MaxTokens)
		}
	}

	threshold := req.QualityThreshold
	if threshold <= 0 {
		threshold = o.cfg.DefaultQualityThreshold
	}
	if result.Success && result.QualityScore < threshold {
		unoptimized := ScoreQuality(req.OriginalPrompt, req.OriginalPrompt, o.counter)
		result.Success = false
		result.Reason = fmt.Sprintf("quality score %.1f below threshold %.1f", result.QualityScore, threshold)
		result.Fallback = &types.FallbackSuggestion{
			Prompt:       req.OriginalPrompt,
			QualityScore: unoptimized,
			Note:         "unoptimized prompt retained to preserve intent",
		}
	}

	o.logger.Info("optimization completed",
		zap.String("tool", req.ToolName),
		zap.String("strategy", string(result.Strategy)),
		zap.String("rule", rule),
		zap.Bool("success", result.Success),
		zap.Int64("token_reduction", result.TokenReduction),
		zap.Float64("quality_score", result.QualityScore),
	)

	o.noteOutcome(req, result)
	noted = true
	return result
}

// execute 按策略派发。模板缺失时降级到 adaptive。
func (o *Optimizer) execute(strategy types.Strategy, req types.OptimizationRequest, origTokens int64, constraints []string) types.OptimizationResult {
	switch strategy {
	case types.StrategyCompression:
		return o.runCompression(req, origTokens)

	case types.StrategyTemplateBase:
		result, err := o.runTemplate(req, origTokens)
		if err != nil {
			o.logger.Info("template strategy unavailable, falling back",
				zap.String("tool", req.ToolName),
				zap.Error(err),
			)
			return o.runAdaptive(req, origTokens)
		}
		return result

	case types.StrategyContextAware:
		return o.runContextAware(req, origTokens, constraints)

	case types.StrategyMLDriven:
		return o.runMLDriven(req, origTokens, constraints)

	default:
		return o.runAdaptive(req, origTokens)
	}
}

func (o *Optimizer) runCompression(req types.OptimizationRequest, origTokens int64) types.OptimizationResult {
	cres := o.compressor.Compress(req.OriginalPrompt)
	est := o.count(cres.Output)
	return types.OptimizationResult{
		Success:         true,
		OptimizedPrompt: cres.Output,
		TokenReduction:  origTokens - est,
		EstimatedTokens: est,
		Strategy:        types.StrategyCompression,
		QualityScore:    ScoreQuality(req.OriginalPrompt, cres.Output, o.counter),
	}
}

func (o *Optimizer) runTemplate(req types.OptimizationRequest, origTokens int64) (types.OptimizationResult, error) {
	tmpl, score, err := o.catalog.Select(req)
	if err != nil {
		return types.OptimizationResult{}, err
	}
	rendered, err := o.catalog.Render(tmpl, req)
	if err != nil {
		return types.OptimizationResult{}, err
	}

	o.catalog.MarkUsed(tmpl.ID)
	if req.SessionID != "" {
		o.sessions.AppendTemplate(req.SessionID, tmpl.ID)
	}
	o.learner.OnTemplateUsed(req.SessionID, tmpl)

	est := o.count(rendered)
	return types.OptimizationResult{
		Success:         true,
		OptimizedPrompt: rendered,
		TokenReduction:  origTokens - est,
		EstimatedTokens: est,
		Strategy:        types.StrategyTemplateBase,
		// 模板结果以目录评分为准，渲染含有意扩充的指令文本
		QualityScore: score,
	}, nil
}

// runContextAware 把约束折叠进重构后的提示词。
func (o *Optimizer) runContextAware(req types.OptimizationRequest, origTokens int64, constraints []string) types.OptimizationResult {
	body := o.compressor.Compress(req.OriginalPrompt).Output

	var sb strings.Builder
	sb.WriteString("Objective: ")
	sb.WriteString(body)

	if len(constraints) > 0 {
		sb.WriteString("\n\nConstraints:")
		seen := make(map[string]bool, len(constraints))
		for _, c := range constraints {
			c = strings.TrimSpace(c)
			key := strings.ToLower(c)
			if c == "" || seen[key] {
				continue
			}
			seen[key] = true
			sb.WriteString("\n- ")
			sb.WriteString(c)
		}
	}
	if req.OutputFormat != "" && req.OutputFormat != types.FormatText {
		fmt.Fprintf(&sb, "\n\nRespond in %s.", req.OutputFormat)
	}

	structured := sb.String()
	est := o.count(structured)
	return types.OptimizationResult{
		Success:         true,
		OptimizedPrompt: structured,
		TokenReduction:  origTokens - est,
		EstimatedTokens: est,
		Strategy:        types.StrategyContextAware,
		QualityScore:    ScoreQuality(req.OriginalPrompt, structured, o.counter),
	}
}

// runMLDriven 咨询学习钩子；无推荐时退化为 adaptive 行为。
func (o *Optimizer) runMLDriven(req types.OptimizationRequest, origTokens int64, constraints []string) types.OptimizationResult {
	var state *SessionState
	if req.SessionID != "" {
		state, _ = o.sessions.Get(req.SessionID)
	}

	recommended := o.learner.RecommendStrategy(state, req)
	if recommended != "" && recommended.Valid() && recommended != types.StrategyMLDriven {
		result := o.execute(recommended, req, origTokens, constraints)
		result.Strategy = types.StrategyMLDriven
		return result
	}

	result := o.runAdaptive(req, origTokens)
	result.Strategy = types.StrategyMLDriven
	return result
}

// runAdaptive 超过 Token 规模阈值时压缩，否则原样通过。
func (o *Optimizer) runAdaptive(req types.OptimizationRequest, origTokens int64) types.OptimizationResult {
	if origTokens > o.cfg.AdaptiveTokenLimit {
		result := o.runCompression(req, origTokens)
		result.Strategy = types.StrategyAdaptive
		return result
	}
	return types.OptimizationResult{
		Success:         true,
		OptimizedPrompt: req.OriginalPrompt,
		TokenReduction:  0,
		EstimatedTokens: origTokens,
		Strategy:        types.StrategyAdaptive,
		QualityScore:    ScoreQuality(req.OriginalPrompt, req.OriginalPrompt, o.counter),
	}
}

// noteOutcome 更新统计、会话记忆与学习钩子。
func (o *Optimizer) noteOutcome(req types.OptimizationRequest, result types.OptimizationResult) {
	o.mu.Lock()
	o.stats.TotalOptimizations++
	if !result.Success {
		o.stats.Failures++
	}
	if result.Success && result.TokenReduction > 0 {
		o.stats.TokensSaved += result.TokenReduction
	}
	o.stats.AvgQualityScore = (o.stats.AvgQualityScore*float64(o.stats.TotalOptimizations-1) + result.QualityScore) / float64(o.stats.TotalOptimizations)
	o.mu.Unlock()

	if req.SessionID != "" {
		o.sessions.Record(req.SessionID, SessionRecord{
			Timestamp:    o.sessions.now(),
			Strategy:     result.Strategy,
			TokensSaved:  result.TokenReduction,
			QualityScore: result.QualityScore,
			Success:      result.Success,
		})
	}
	o.learner.OnResult(req.SessionID, result)
}

func (o *Optimizer) count(text string) int64 {
	return countOrEstimate(text, o.counter)
}
