package budget

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/promptgate/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 🔔 预算告警引擎
// =============================================================================

// AlertHandler 异步接收新产生的告警。
type AlertHandler func(alert types.BudgetAlert)

// AlertEngine 按阈值评估用量比并维护告警历史。
//
// 告警不做去重: 每次评估越过阈值都会产生一条新告警，由调用方决定
// 评估频率。历史为定长环形缓冲，超出上限时丢弃最旧条目。
type AlertEngine struct {
	mu       sync.RWMutex
	alerts   []types.BudgetAlert
	limit    int
	handlers []AlertHandler
	logger   *zap.Logger

	// now 可注入时钟，便于测试
	now func() time.Time
}

// NewAlertEngine 创建告警引擎。limit 为历史容量上限，非正值取 100。
func NewAlertEngine(limit int, logger *zap.Logger) *AlertEngine {
	if limit <= 0 {
		limit = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertEngine{
		alerts: make([]types.BudgetAlert, 0, limit),
		limit:  limit,
		logger: logger.With(zap.String("component", "alert_engine")),
		now:    time.Now,
	}
}

// OnAlert 注册告警处理器。处理器在独立 goroutine 中调用，不得阻塞评估。
func (e *AlertEngine) OnAlert(h AlertHandler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// Evaluate 评估某周期的用量比。越过阈值时产生并记录一条告警，
// 否则返回 nil。严重阈值优先于警告阈值。
func (e *AlertEngine) Evaluate(period types.PeriodKind, usageRatio, warningThreshold, criticalThreshold float64) *types.BudgetAlert {
	var (
		alertType types.AlertType
		threshold float64
		action    string
	)

	switch {
	case usageRatio >= criticalThreshold:
		alertType = types.AlertCritical
		threshold = criticalThreshold
		action = "Immediate action required: pause non-essential operations for remainder of period"
	case usageRatio >= warningThreshold:
		alertType = types.AlertWarning
		threshold = warningThreshold
		action = "monitor usage, consider prompt compression"
	default:
		return nil
	}

	alert := types.BudgetAlert{
		ID:     uuid.NewString(),
		Type:   alertType,
		Period: period,
		Message: fmt.Sprintf("%s budget usage at %.1f%% exceeds %.0f%% threshold",
			period, usageRatio*100, threshold*100),
		Timestamp:         e.now(),
		CurrentUsageRatio: usageRatio,
		Threshold:         threshold,
		RecommendedAction: action,
	}

	e.mu.Lock()
	e.alerts = append(e.alerts, alert)
	if len(e.alerts) > e.limit {
		e.alerts = e.alerts[len(e.alerts)-e.limit:]
	}
	handlers := make([]AlertHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	e.logger.Warn("budget alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("type", string(alert.Type)),
		zap.String("period", string(alert.Period)),
		zap.Float64("usage_ratio", usageRatio),
		zap.Float64("threshold", threshold),
	)

	for _, h := range handlers {
		go h(alert)
	}
	return &alert
}

// Alerts 返回告警历史快照，按时间先后排列。
func (e *AlertEngine) Alerts() []types.BudgetAlert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.BudgetAlert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// Clear 清空告警历史。
func (e *AlertEngine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = e.alerts[:0]
}
