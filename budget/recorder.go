package budget

import (
	"sync"
	"time"

	"github.com/BaSui01/promptgate/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🧾 用量结算器
// =============================================================================

// UsageEvent 一笔已结算用量的完整描述，供持久化与指标钩子消费。
type UsageEvent struct {
	RequestID    string
	ToolName     string
	Priority     types.Priority
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Variance     types.UsageVariance
	RecordedAt   time.Time
}

// Recorder 以实际用量结算在途配额: 取走配额、入账、对比预估偏差并
// 触发阈值评估。结算是预算闭环的唯一入账入口。
type Recorder struct {
	mu     sync.RWMutex
	gate   *Gate
	cost   *CostModel
	ledger *Ledger
	alerts *AlertEngine
	logger *zap.Logger

	onRecord func(ev UsageEvent)

	// now 可注入时钟，便于测试
	now func() time.Time
}

// NewRecorder 创建结算器。
func NewRecorder(gate *Gate, cost *CostModel, ledger *Ledger, alerts *AlertEngine, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		gate:   gate,
		cost:   cost,
		ledger: ledger,
		alerts: alerts,
		logger: logger.With(zap.String("component", "usage_recorder")),
		now:    time.Now,
	}
}

// SetRecordHook 注册结算完成后的回调，用于持久化与指标上报。
// 回调在结算调用的 goroutine 内同步执行，不得长时间阻塞。
func (r *Recorder) SetRecordHook(fn func(ev UsageEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRecord = fn
}

// RecordUsage 结算指定请求的实际用量并返回预估偏差。
//
// 未知 RequestID 记警告后静默返回，不产生账目变动，重复结算同理，
// 配额在首次结算时即被取走。
func (r *Recorder) RecordUsage(requestID string, inputTokens, outputTokens int64) (*types.UsageVariance, error) {
	if requestID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "request_id must not be empty")
	}
	if inputTokens < 0 || outputTokens < 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "token counts must not be negative")
	}

	alloc, ok := r.gate.TakeAllocation(requestID)
	if !ok {
		r.logger.Warn("usage reported for unknown allocation",
			zap.String("request_id", requestID),
			zap.Int64("input_tokens", inputTokens),
			zap.Int64("output_tokens", outputTokens),
		)
		return nil, nil
	}

	actualCost, err := r.cost.Cost(inputTokens, outputTokens)
	if err != nil {
		return nil, err
	}
	if err := r.ledger.RecordUsage(inputTokens, outputTokens, actualCost); err != nil {
		return nil, err
	}

	variance := types.UsageVariance{
		RequestID:       requestID,
		EstimatedTokens: alloc.EstimatedInputTokens + alloc.EstimatedOutputTokens,
		ActualTokens:    inputTokens + outputTokens,
		EstimatedCost:   alloc.EstimatedCost,
		ActualCost:      actualCost,
	}
	variance.TokenDelta = variance.ActualTokens - variance.EstimatedTokens
	variance.CostDelta = variance.ActualCost - variance.EstimatedCost

	if variance.CostDelta > 0 {
		r.logger.Warn("actual usage exceeded estimate",
			zap.String("request_id", requestID),
			zap.Int64("token_delta", variance.TokenDelta),
			zap.Float64("cost_delta", variance.CostDelta),
		)
	} else {
		r.logger.Debug("usage settled",
			zap.String("request_id", requestID),
			zap.Int64("token_delta", variance.TokenDelta),
			zap.Float64("cost_delta", variance.CostDelta),
		)
	}

	r.evaluateThresholds()

	r.mu.RLock()
	hook := r.onRecord
	r.mu.RUnlock()
	if hook != nil {
		hook(UsageEvent{
			RequestID:    requestID,
			ToolName:     alloc.ToolName,
			Priority:     alloc.Priority,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			Cost:         actualCost,
			Variance:     variance,
			RecordedAt:   r.now(),
		})
	}

	return &variance, nil
}

// evaluateThresholds 对日 / 月周期各自独立评估告警阈值。
func (r *Recorder) evaluateThresholds() {
	if r.alerts == nil {
		return
	}
	cfg := r.ledger.Config()
	daily, monthly := r.ledger.UsageRatios()
	r.alerts.Evaluate(types.PeriodDaily, daily, cfg.WarningThreshold, cfg.CriticalThreshold)
	r.alerts.Evaluate(types.PeriodMonthly, monthly, cfg.WarningThreshold, cfg.CriticalThreshold)
}
