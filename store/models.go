package store

import (
	"time"

	"github.com/BaSui01/promptgate/types"
)

// =============================================================================
// 📦 持久化模型
// =============================================================================

// UsageRecord 一次已结算请求的用量流水。
type UsageRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RequestID     string    `gorm:"size:128;not null;index:idx_usage_request" json:"request_id"` // 审批时的请求标识
	ToolName      string    `gorm:"size:128" json:"tool_name"`                                   // 发起请求的工具
	Priority      string    `gorm:"size:16" json:"priority"`                                     // low / medium / high
	InputTokens   int64     `gorm:"not null" json:"input_tokens"`                                // 实际输入 Token
	OutputTokens  int64     `gorm:"not null" json:"output_tokens"`                               // 实际输出 Token
	TotalCost     float64   `gorm:"type:decimal(16,8);not null" json:"total_cost"`               // 实际成本
	EstimatedCost float64   `gorm:"type:decimal(16,8)" json:"estimated_cost"`                    // 审批时的估算成本
	CostVariance  float64   `gorm:"type:decimal(16,8)" json:"cost_variance"`                     // 实际 - 估算
	TokenVariance int64     `json:"token_variance"`                                              // 实际 - 估算（Token）
	CreatedAt     time.Time `gorm:"index:idx_usage_created" json:"created_at"`
}

// TableName 指定表名
func (UsageRecord) TableName() string {
	return "usage_records"
}

// AlertRecord 一条预算告警的落盘副本。
type AlertRecord struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	AlertID           string    `gorm:"size:64;not null;uniqueIndex:idx_alert_alert_id" json:"alert_id"` // 引擎内的告警 UUID
	Type              string    `gorm:"size:16;not null" json:"type"`                                    // warning / critical
	Period            string    `gorm:"size:16;not null" json:"period"`                                  // daily / monthly
	Message           string    `gorm:"size:512" json:"message"`
	CurrentUsageRatio float64   `json:"current_usage_ratio"`
	Threshold         float64   `json:"threshold"`
	RecommendedAction string    `gorm:"size:512" json:"recommended_action"`
	RaisedAt          time.Time `gorm:"not null;index:idx_alert_raised" json:"raised_at"` // 引擎触发时刻
	CreatedAt         time.Time `json:"created_at"`
}

// TableName 指定表名
func (AlertRecord) TableName() string {
	return "alert_records"
}

// NewAlertRecord 从引擎告警构造落盘记录。
func NewAlertRecord(alert types.BudgetAlert) *AlertRecord {
	return &AlertRecord{
		AlertID:           alert.ID,
		Type:              string(alert.Type),
		Period:            string(alert.Period),
		Message:           alert.Message,
		CurrentUsageRatio: alert.CurrentUsageRatio,
		Threshold:         alert.Threshold,
		RecommendedAction: alert.RecommendedAction,
		RaisedAt:          alert.Timestamp,
	}
}

// ToBudgetAlert 还原为引擎告警结构。
func (r *AlertRecord) ToBudgetAlert() types.BudgetAlert {
	return types.BudgetAlert{
		ID:                r.AlertID,
		Type:              types.AlertType(r.Type),
		Period:            types.PeriodKind(r.Period),
		Message:           r.Message,
		Timestamp:         r.RaisedAt,
		CurrentUsageRatio: r.CurrentUsageRatio,
		Threshold:         r.Threshold,
		RecommendedAction: r.RecommendedAction,
	}
}
