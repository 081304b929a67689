package budget

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/promptgate/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📒 预算账本
// =============================================================================

// Config 预算策略配置。
type Config struct {
	// DailyBudget 每日预算（货币单位）
	DailyBudget float64 `json:"daily_budget" yaml:"daily_budget"`
	// MonthlyBudget 每月预算（货币单位）
	MonthlyBudget float64 `json:"monthly_budget" yaml:"monthly_budget"`
	// MaxTokensPerRequest 单请求 Token 上限
	MaxTokensPerRequest int64 `json:"max_tokens_per_request" yaml:"max_tokens_per_request"`
	// ReservePercentage 低优先级请求不可触碰的每日预留比例，取值 [0, 0.5]
	ReservePercentage float64 `json:"reserve_percentage" yaml:"reserve_percentage"`
	// WarningThreshold 警告阈值，取值 [0, 1]
	WarningThreshold float64 `json:"warning_threshold" yaml:"warning_threshold"`
	// CriticalThreshold 严重阈值，取值 [0, 1]，必须大于 WarningThreshold
	CriticalThreshold float64 `json:"critical_threshold" yaml:"critical_threshold"`
}

// DefaultConfig 返回默认预算配置。
func DefaultConfig() Config {
	return Config{
		DailyBudget:         100,
		MonthlyBudget:       2000,
		MaxTokensPerRequest: 50000,
		ReservePercentage:   0.2,
		WarningThreshold:    0.80,
		CriticalThreshold:   0.95,
	}
}

// Validate 校验预算配置。
func (c Config) Validate() error {
	if c.DailyBudget <= 0 {
		return types.NewError(types.ErrInvalidConfig, "daily_budget must be positive")
	}
	if c.MonthlyBudget <= 0 {
		return types.NewError(types.ErrInvalidConfig, "monthly_budget must be positive")
	}
	if c.MaxTokensPerRequest <= 0 {
		return types.NewError(types.ErrInvalidConfig, "max_tokens_per_request must be positive")
	}
	if c.ReservePercentage < 0 || c.ReservePercentage > 0.5 {
		return types.NewError(types.ErrInvalidConfig, "reserve_percentage must be in [0, 0.5]")
	}
	if c.WarningThreshold < 0 || c.WarningThreshold > 1 {
		return types.NewError(types.ErrInvalidConfig, "warning_threshold must be in [0, 1]")
	}
	if c.CriticalThreshold < 0 || c.CriticalThreshold > 1 {
		return types.NewError(types.ErrInvalidConfig, "critical_threshold must be in [0, 1]")
	}
	if c.WarningThreshold >= c.CriticalThreshold {
		return types.NewError(types.ErrInvalidConfig, "warning_threshold must be below critical_threshold")
	}
	return nil
}

// ConfigPatch 预算配置的部分更新。nil 字段保持原值。
type ConfigPatch struct {
	DailyBudget         *float64 `json:"daily_budget,omitempty"`
	MonthlyBudget       *float64 `json:"monthly_budget,omitempty"`
	MaxTokensPerRequest *int64   `json:"max_tokens_per_request,omitempty"`
	ReservePercentage   *float64 `json:"reserve_percentage,omitempty"`
	WarningThreshold    *float64 `json:"warning_threshold,omitempty"`
	CriticalThreshold   *float64 `json:"critical_threshold,omitempty"`
}

// Availability 可用性检查结果。拒绝以 Available=false + Reason 表达。
type Availability struct {
	Available bool
	Reason    string
}

// periodStats 单周期的内部累计值。周期边界整体重建。
type periodStats struct {
	kind     types.PeriodKind
	start    time.Time
	end      time.Time
	input    int64
	output   int64
	cost     float64
	requests int64
}

func newDailyStats(now time.Time) *periodStats {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return &periodStats{
		kind:  types.PeriodDaily,
		start: start,
		end:   start.Add(24 * time.Hour),
	}
}

func newMonthlyStats(now time.Time) *periodStats {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return &periodStats{
		kind:  types.PeriodMonthly,
		start: start,
		end:   start.AddDate(0, 1, 0),
	}
}

// snapshot 返回对外的统计快照。
func (p *periodStats) snapshot() types.UsagePeriodStats {
	avg := 0.0
	if p.requests > 0 {
		avg = float64(p.input+p.output) / float64(p.requests)
	}
	return types.UsagePeriodStats{
		Period:    p.kind,
		StartDate: p.start,
		EndDate:   p.end,
		TotalTokens: types.TokenTotals{
			Input:  p.input,
			Output: p.output,
			Total:  p.input + p.output,
		},
		TotalCost:               p.cost,
		RequestCount:            p.requests,
		AverageTokensPerRequest: avg,
	}
}

// Ledger 滚动的日 / 月用量账本。所有周期边界按 UTC 计算。
type Ledger struct {
	mu      sync.RWMutex
	cfg     Config
	daily   *periodStats
	monthly *periodStats
	logger  *zap.Logger

	// now 可注入时钟，便于测试周期滚动与外推
	now func() time.Time
}

// NewLedger 创建账本，配置不合法时返回错误。
func NewLedger(cfg Config, logger *zap.Logger) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "budget_ledger")),
		now:    time.Now,
	}
	now := l.now().UTC()
	l.daily = newDailyStats(now)
	l.monthly = newMonthlyStats(now)
	return l, nil
}

// rolloverLocked 在周期边界整体重建统计对象。调用方必须持有写锁。
func (l *Ledger) rolloverLocked(now time.Time) {
	if !now.Before(l.daily.end) {
		l.logger.Info("daily budget period rolled over",
			zap.Time("previous_start", l.daily.start),
			zap.Float64("previous_cost", l.daily.cost),
			zap.Int64("previous_requests", l.daily.requests),
		)
		l.daily = newDailyStats(now)
	}
	if !now.Before(l.monthly.end) {
		l.logger.Info("monthly budget period rolled over",
			zap.Time("previous_start", l.monthly.start),
			zap.Float64("previous_cost", l.monthly.cost),
			zap.Int64("previous_requests", l.monthly.requests),
		)
		l.monthly = newMonthlyStats(now)
	}
}

// CheckAvailability 按优先级策略检查一笔成本能否放行。
//
// 检查顺序:
//  1. 月预算是硬上限，超出无条件拒绝，任何优先级不可越过
//  2. 超出日剩余时，仅高优先级且不超过日剩余 110% 可放行
//  3. 低优先级不可动用每日预留（reserve_percentage），中 / 高不受限
func (l *Ledger) CheckAvailability(cost float64, priority types.Priority) Availability {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	l.rolloverLocked(now)

	dailyRemaining := l.cfg.DailyBudget - l.daily.cost
	monthlyRemaining := l.cfg.MonthlyBudget - l.monthly.cost

	if cost > monthlyRemaining {
		reason := fmt.Sprintf(
			"monthly budget exhausted: cost %.6f exceeds remaining %.6f (hard cap, no priority override)",
			cost, monthlyRemaining,
		)
		if cost > dailyRemaining {
			reason = fmt.Sprintf(
				"request cost %.6f exceeds both daily budget remaining %.6f and monthly budget remaining %.6f (monthly is a hard cap)",
				cost, dailyRemaining, monthlyRemaining,
			)
		}
		return Availability{Available: false, Reason: reason}
	}

	if cost > dailyRemaining {
		if priority == types.PriorityHigh && cost <= dailyRemaining*1.10 {
			l.logger.Info("high priority overage allowed",
				zap.Float64("cost", cost),
				zap.Float64("daily_remaining", dailyRemaining),
			)
			return Availability{Available: true}
		}
		return Availability{
			Available: false,
			Reason: fmt.Sprintf(
				"daily budget exceeded: cost %.6f exceeds remaining %.6f",
				cost, dailyRemaining,
			),
		}
	}

	if priority == types.PriorityLow {
		reserve := l.cfg.DailyBudget * l.cfg.ReservePercentage
		if cost > dailyRemaining-reserve {
			return Availability{
				Available: false,
				Reason: fmt.Sprintf(
					"exceeds available non-reserve budget: cost %.6f, non-reserve remaining %.6f (reserve %.6f withheld from low priority)",
					cost, dailyRemaining-reserve, reserve,
				),
			}
		}
	}

	return Availability{Available: true}
}

// RecordUsage 将一笔实际用量计入日 / 月两个周期。
func (l *Ledger) RecordUsage(inputTokens, outputTokens int64, cost float64) error {
	if inputTokens < 0 || outputTokens < 0 {
		return types.NewError(types.ErrInvalidRequest, "token counts must not be negative")
	}
	if cost < 0 {
		return types.NewError(types.ErrInvalidRequest, "cost must not be negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	l.rolloverLocked(now)

	for _, p := range []*periodStats{l.daily, l.monthly} {
		p.input += inputTokens
		p.output += outputTokens
		p.cost += cost
		p.requests++
	}

	l.logger.Debug("usage recorded",
		zap.Int64("input_tokens", inputTokens),
		zap.Int64("output_tokens", outputTokens),
		zap.Float64("cost", cost),
		zap.Float64("daily_total", l.daily.cost),
		zap.Float64("monthly_total", l.monthly.cost),
	)
	return nil
}

// DailyUsage 返回当日统计快照。
func (l *Ledger) DailyUsage() types.UsagePeriodStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(l.now().UTC())
	return l.daily.snapshot()
}

// MonthlyUsage 返回当月统计快照。
func (l *Ledger) MonthlyUsage() types.UsagePeriodStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(l.now().UTC())
	return l.monthly.snapshot()
}

// Remaining 返回各周期剩余预算，下限 0。
func (l *Ledger) Remaining() types.RemainingBudget {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(l.now().UTC())

	daily := l.cfg.DailyBudget - l.daily.cost
	if daily < 0 {
		daily = 0
	}
	monthly := l.cfg.MonthlyBudget - l.monthly.cost
	if monthly < 0 {
		monthly = 0
	}
	return types.RemainingBudget{Daily: daily, Monthly: monthly}
}

// Projected 按当前速率外推各周期的总用量:
// (totalCost / requestCount) × ((requestCount / elapsedHours) × remainingHours)。
// 无请求或无流逝时间时返回 0。
func (l *Ledger) Projected() types.ProjectedUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	l.rolloverLocked(now)

	return types.ProjectedUsage{
		Daily:   projectPeriod(l.daily, now),
		Monthly: projectPeriod(l.monthly, now),
	}
}

func projectPeriod(p *periodStats, now time.Time) float64 {
	if p.requests == 0 {
		return 0
	}
	elapsedHours := now.Sub(p.start).Hours()
	if elapsedHours <= 0 {
		return 0
	}
	remainingHours := p.end.Sub(now).Hours()
	if remainingHours < 0 {
		remainingHours = 0
	}

	avgCostPerRequest := p.cost / float64(p.requests)
	estimatedRemainingRequests := float64(p.requests) / elapsedHours * remainingHours
	return avgCostPerRequest * estimatedRemainingRequests
}

// UsageRatios 返回各周期的 totalCost/budget 比值。
func (l *Ledger) UsageRatios() (daily, monthly float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(l.now().UTC())
	return l.daily.cost / l.cfg.DailyBudget, l.monthly.cost / l.cfg.MonthlyBudget
}

// ResetDaily 强制重建当日周期。
func (l *Ledger) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.daily = newDailyStats(l.now().UTC())
	l.logger.Info("daily budget period reset")
}

// ResetMonthly 强制重建当月周期。
func (l *Ledger) ResetMonthly() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.monthly = newMonthlyStats(l.now().UTC())
	l.logger.Info("monthly budget period reset")
}

// Reset 强制重建两个周期。
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now().UTC()
	l.daily = newDailyStats(now)
	l.monthly = newMonthlyStats(now)
	l.logger.Info("budget periods reset")
}

// Config 返回当前预算配置的副本。
func (l *Ledger) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// UpdateConfig 对部分更新做校验合并。校验失败时原配置保持不变。
func (l *Ledger) UpdateConfig(patch ConfigPatch) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.cfg
	if patch.DailyBudget != nil {
		next.DailyBudget = *patch.DailyBudget
	}
	if patch.MonthlyBudget != nil {
		next.MonthlyBudget = *patch.MonthlyBudget
	}
	if patch.MaxTokensPerRequest != nil {
		next.MaxTokensPerRequest = *patch.MaxTokensPerRequest
	}
	if patch.ReservePercentage != nil {
		next.ReservePercentage = *patch.ReservePercentage
	}
	if patch.WarningThreshold != nil {
		next.WarningThreshold = *patch.WarningThreshold
	}
	if patch.CriticalThreshold != nil {
		next.CriticalThreshold = *patch.CriticalThreshold
	}

	if err := next.Validate(); err != nil {
		return err
	}

	l.cfg = next
	l.logger.Info("budget config updated",
		zap.Float64("daily_budget", next.DailyBudget),
		zap.Float64("monthly_budget", next.MonthlyBudget),
	)
	return nil
}
