package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/promptgate/budget"
	"github.com/BaSui01/promptgate/internal/metrics"
	"github.com/BaSui01/promptgate/optimizer"
	"github.com/BaSui01/promptgate/store"
	"github.com/BaSui01/promptgate/tokenizer"
	"github.com/BaSui01/promptgate/types"
)

// =============================================================================
// 📦 Governor 引擎门面
// =============================================================================

// persistTimeout 单次旁路落盘的超时上限。
const persistTimeout = 5 * time.Second

// Config 聚合引擎各组件的配置。
type Config struct {
	// Budget 预算策略
	Budget budget.Config
	// Cost 计价配置
	Cost budget.CostConfig
	// Optimizer 优化器配置
	Optimizer optimizer.Config
	// AllocationTTL 在途预留的存活时长
	AllocationTTL time.Duration
	// SweepInterval 过期预留清扫间隔，0 关闭后台清扫
	SweepInterval time.Duration
	// AlertHistoryLimit 告警环形缓冲上限
	AlertHistoryLimit int
}

// DefaultConfig 返回生产默认配置。
func DefaultConfig() Config {
	return Config{
		Budget:            budget.DefaultConfig(),
		Cost:              budget.DefaultCostConfig(),
		Optimizer:         optimizer.DefaultConfig(),
		AllocationTTL:     10 * time.Minute,
		SweepInterval:     time.Minute,
		AlertHistoryLimit: 100,
	}
}

// Option Governor 的函数式选项。
type Option func(*Governor)

// WithStore 挂接用量与告警的持久化存储。
func WithStore(st store.Store) Option {
	return func(g *Governor) {
		g.store = st
	}
}

// WithMetrics 挂接 Prometheus 指标收集器。
func WithMetrics(c *metrics.Collector) Option {
	return func(g *Governor) {
		g.metrics = c
	}
}

// WithResultCache 挂接优化结果缓存。挂接了指标收集器时,
// 缓存读取路径会同时计数命中与未命中。
func WithResultCache(rc optimizer.ResultCache) Option {
	return func(g *Governor) {
		g.resultCache = rc
	}
}

// WithTokenCounter 替换默认的启发式 Token 计数器。
func WithTokenCounter(tc tokenizer.Counter) Option {
	return func(g *Governor) {
		if tc != nil {
			g.optOpts = append(g.optOpts, optimizer.WithCounter(tc))
		}
	}
}

// WithTemplateCatalog 替换内置模板目录。
func WithTemplateCatalog(cat *optimizer.TemplateCatalog) Option {
	return func(g *Governor) {
		if cat != nil {
			g.optOpts = append(g.optOpts, optimizer.WithCatalog(cat))
		}
	}
}

// WithLearningHook 挂接策略学习钩子。
func WithLearningHook(h optimizer.LearningHook) Option {
	return func(g *Governor) {
		if h != nil {
			g.optOpts = append(g.optOpts, optimizer.WithLearningHook(h))
		}
	}
}

// Governor 预算治理与提示词优化的进程内门面。
// 决策路径全部在内存中完成；store 与 metrics 是旁路副作用，
// 失败只记日志，从不反向影响决策。
type Governor struct {
	cfg    Config
	logger *zap.Logger

	cost      *budget.CostModel
	ledger    *budget.Ledger
	gate      *budget.Gate
	alerts    *budget.AlertEngine
	recorder  *budget.Recorder
	optimizer *optimizer.Optimizer

	store       store.Store
	metrics     *metrics.Collector
	resultCache optimizer.ResultCache
	optOpts     []optimizer.Option

	closeOnce sync.Once
	closeErr  error
}

// New 装配一个 Governor。配置非法时返回 INVALID_CONFIG。
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Governor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Governor{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "governor")),
	}
	for _, opt := range opts {
		opt(g)
	}

	cost, err := budget.NewCostModel(cfg.Cost)
	if err != nil {
		return nil, err
	}
	ledger, err := budget.NewLedger(cfg.Budget, logger)
	if err != nil {
		return nil, err
	}

	g.cost = cost
	g.ledger = ledger
	g.alerts = budget.NewAlertEngine(cfg.AlertHistoryLimit, logger)
	g.gate = budget.NewGate(cost, ledger, cfg.AllocationTTL, cfg.SweepInterval, logger)
	g.recorder = budget.NewRecorder(g.gate, cost, ledger, g.alerts, logger)

	if g.resultCache != nil {
		rc := g.resultCache
		if g.metrics != nil {
			rc = &meteredResultCache{inner: rc, metrics: g.metrics}
		}
		g.optOpts = append(g.optOpts, optimizer.WithCache(rc))
	}
	g.optimizer = optimizer.New(cfg.Optimizer, logger, g.optOpts...)

	g.gate.SetReclaimHook(g.afterReclaim)
	g.recorder.SetRecordHook(g.afterSettlement)
	g.alerts.OnAlert(g.afterAlert)

	g.logger.Info("governor assembled",
		zap.Float64("daily_budget", cfg.Budget.DailyBudget),
		zap.Float64("monthly_budget", cfg.Budget.MonthlyBudget),
		zap.Bool("store_attached", g.store != nil),
		zap.Bool("metrics_attached", g.metrics != nil),
	)
	return g, nil
}

// =============================================================================
// 💰 预算面
// =============================================================================

// RequestApproval 审批一次预算请求。拒绝通过 Approved=false 表达。
func (g *Governor) RequestApproval(req types.BudgetRequest) (types.BudgetApproval, error) {
	approval, err := g.gate.RequestApproval(req)
	if err != nil {
		return approval, err
	}

	if g.metrics != nil {
		decision := "rejected"
		if approval.Approved {
			decision = "approved"
		}
		priority := req.Priority
		if priority == "" {
			priority = types.PriorityMedium
		}
		g.metrics.RecordApproval(decision, string(priority))
		g.metrics.SetActiveAllocations(len(g.gate.ActiveAllocations()))
	}
	return approval, nil
}

// RecordUsage 以实际用量结算指定请求。未知请求为无害空操作。
func (g *Governor) RecordUsage(requestID string, actualInputTokens, actualOutputTokens int64) (*types.UsageVariance, error) {
	return g.recorder.RecordUsage(requestID, actualInputTokens, actualOutputTokens)
}

// GetDailyUsage 返回当日用量快照。
func (g *Governor) GetDailyUsage() types.UsagePeriodStats {
	return g.ledger.DailyUsage()
}

// GetMonthlyUsage 返回当月用量快照。
func (g *Governor) GetMonthlyUsage() types.UsagePeriodStats {
	return g.ledger.MonthlyUsage()
}

// GetRemainingBudget 返回各周期剩余预算，下限为 0。
func (g *Governor) GetRemainingBudget() types.RemainingBudget {
	return g.ledger.Remaining()
}

// GetProjectedUsage 按当前速率外推各周期的期末用量。
func (g *Governor) GetProjectedUsage() types.ProjectedUsage {
	return g.ledger.Projected()
}

// GetAlerts 返回告警环形缓冲的副本，旧告警在前。
func (g *Governor) GetAlerts() []types.BudgetAlert {
	return g.alerts.Alerts()
}

// OnAlert 注册告警回调。回调在独立 goroutine 中执行。
func (g *Governor) OnAlert(h budget.AlertHandler) {
	g.alerts.OnAlert(h)
}

// UpdateBudgetConfig 校验并合并预算配置。校验失败时状态不变。
func (g *Governor) UpdateBudgetConfig(patch budget.ConfigPatch) error {
	return g.ledger.UpdateConfig(patch)
}

// UpdateCostConfig 校验并合并计价配置。校验失败时状态不变。
func (g *Governor) UpdateCostConfig(patch budget.CostConfigPatch) error {
	return g.cost.UpdateConfig(patch)
}

// BudgetConfig 返回当前生效的预算配置快照。
func (g *Governor) BudgetConfig() budget.Config {
	return g.ledger.Config()
}

// CostConfig 返回当前生效的计价配置快照。
func (g *Governor) CostConfig() budget.CostConfig {
	return g.cost.Config()
}

// =============================================================================
// 🎯 优化面
// =============================================================================

// Optimize 执行一次提示词优化。
func (g *Governor) Optimize(ctx context.Context, req types.OptimizationRequest) (types.OptimizationResult, error) {
	result, err := g.optimizer.Optimize(ctx, req)
	if err != nil {
		return result, err
	}

	if g.metrics != nil {
		outcome := "failure"
		if result.Success {
			outcome = "success"
		}
		g.metrics.RecordOptimization(string(result.Strategy), outcome, result.TokenReduction)
	}
	return result, nil
}

// OptimizerStats 返回优化器累计统计。
func (g *Governor) OptimizerStats() optimizer.Stats {
	return g.optimizer.Stats()
}

// Close 停止后台清扫等全部 goroutine。可安全重复调用。
func (g *Governor) Close() error {
	g.closeOnce.Do(func() {
		g.closeErr = g.gate.Close()
		g.logger.Info("governor closed")
	})
	return g.closeErr
}

// =============================================================================
// 🔧 旁路钩子
// =============================================================================

// afterSettlement 结算后上报指标并异步落盘。
func (g *Governor) afterSettlement(ev budget.UsageEvent) {
	if g.metrics != nil {
		g.metrics.RecordUsage(string(types.PeriodDaily), ev.InputTokens, ev.OutputTokens, ev.Cost)
		g.metrics.RecordUsage(string(types.PeriodMonthly), ev.InputTokens, ev.OutputTokens, ev.Cost)

		daily, monthly := g.ledger.UsageRatios()
		g.metrics.SetUsageRatio(string(types.PeriodDaily), daily)
		g.metrics.SetUsageRatio(string(types.PeriodMonthly), monthly)
		g.metrics.SetActiveAllocations(len(g.gate.ActiveAllocations()))
	}

	if g.store != nil {
		go g.persistUsage(ev)
	}
}

// afterAlert 在告警扇出 goroutine 内上报指标并落盘。
func (g *Governor) afterAlert(alert types.BudgetAlert) {
	if g.metrics != nil {
		g.metrics.RecordAlert(string(alert.Type), string(alert.Period))
	}

	if g.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := g.store.SaveAlert(ctx, store.NewAlertRecord(alert)); err != nil {
			g.logger.Warn("alert persistence failed",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}
}

// afterReclaim 清扫回收后更新在途预留指标。
func (g *Governor) afterReclaim(_ types.BudgetAllocation) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordAllocationsSwept(1)
	g.metrics.SetActiveAllocations(len(g.gate.ActiveAllocations()))
}

func (g *Governor) persistUsage(ev budget.UsageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	rec := &store.UsageRecord{
		RequestID:     ev.RequestID,
		ToolName:      ev.ToolName,
		Priority:      string(ev.Priority),
		InputTokens:   ev.InputTokens,
		OutputTokens:  ev.OutputTokens,
		TotalCost:     ev.Cost,
		EstimatedCost: ev.Variance.EstimatedCost,
		CostVariance:  ev.Variance.CostDelta,
		TokenVariance: ev.Variance.TokenDelta,
		CreatedAt:     ev.RecordedAt,
	}
	if err := g.store.SaveUsage(ctx, rec); err != nil {
		g.logger.Warn("usage persistence failed",
			zap.String("request_id", ev.RequestID),
			zap.Error(err),
		)
	}
}

// resultCacheType 缓存指标的 cache_type 标签值。
const resultCacheType = "result"

// meteredResultCache 在缓存读取路径上计数命中与未命中。
// 查询错误不计数,留给日志与调用方处理。
type meteredResultCache struct {
	inner   optimizer.ResultCache
	metrics *metrics.Collector
}

func (m *meteredResultCache) Get(ctx context.Context, key string) (*types.OptimizationResult, error) {
	result, err := m.inner.Get(ctx, key)
	switch {
	case err == nil && result != nil:
		m.metrics.RecordCacheHit(resultCacheType)
	case errors.Is(err, optimizer.ErrCacheMiss):
		m.metrics.RecordCacheMiss(resultCacheType)
	}
	return result, err
}

func (m *meteredResultCache) Set(ctx context.Context, key string, result *types.OptimizationResult) error {
	return m.inner.Set(ctx, key, result)
}
