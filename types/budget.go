package types

import "time"

// =============================================================================
// 📦 预算域类型
// =============================================================================

// Priority 请求优先级。低优先级受预留额度限制，高优先级可用 10% 超额。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid 校验优先级取值。
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// PeriodKind 预算周期种类。
type PeriodKind string

const (
	PeriodDaily   PeriodKind = "daily"
	PeriodMonthly PeriodKind = "monthly"
)

// TokenTotals Token 累计量。Total 恒等于 Input + Output。
type TokenTotals struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// UsagePeriodStats 单个预算周期的用量统计。
// 周期内各项累计值单调不减，周期边界整体重建（不跨边界逐字段修改）。
type UsagePeriodStats struct {
	Period                  PeriodKind  `json:"period"`
	StartDate               time.Time   `json:"start_date"`
	EndDate                 time.Time   `json:"end_date"`
	TotalTokens             TokenTotals `json:"total_tokens"`
	TotalCost               float64     `json:"total_cost"`
	RequestCount            int64       `json:"request_count"`
	AverageTokensPerRequest float64     `json:"average_tokens_per_request"`
}

// BudgetRequest 预算审批请求。
type BudgetRequest struct {
	RequestID             string   `json:"request_id"`
	ToolName              string   `json:"tool_name"`
	EstimatedInputTokens  int64    `json:"estimated_input_tokens"`
	EstimatedOutputTokens int64    `json:"estimated_output_tokens"`
	Priority              Priority `json:"priority"`

	// MaxCost 为 0 表示调用方未设置上限。
	MaxCost float64 `json:"max_cost,omitempty"`
}

// TokenAllocation 审批通过时分配的 Token 额度。
type TokenAllocation struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

// Alternatives 拒绝时给出的替代方案。
type Alternatives struct {
	ReducedTokens    int64  `json:"reduced_tokens"`
	FallbackStrategy string `json:"fallback_strategy"`
}

// BudgetApproval 预算审批结果。拒绝通过 Approved=false 表达，从不以 error 形式抛出。
type BudgetApproval struct {
	Approved        bool            `json:"approved"`
	RequestID       string          `json:"request_id"`
	AllocatedTokens TokenAllocation `json:"allocated_tokens"`
	EstimatedCost   float64         `json:"estimated_cost"`
	Reason          string          `json:"reason,omitempty"`
	Alternatives    *Alternatives   `json:"alternatives,omitempty"`
}

// BudgetAllocation 审批通过后登记的在途预留，按 RequestID 索引。
// 记录实际用量或过期清扫时销毁。
type BudgetAllocation struct {
	RequestID             string    `json:"request_id"`
	ToolName              string    `json:"tool_name"`
	EstimatedInputTokens  int64     `json:"estimated_input_tokens"`
	EstimatedOutputTokens int64     `json:"estimated_output_tokens"`
	EstimatedCost         float64   `json:"estimated_cost"`
	Priority              Priority  `json:"priority"`
	CreatedAt             time.Time `json:"created_at"`
	ExpiresAt             time.Time `json:"expires_at"`
}

// =============================================================================
// 🔔 告警类型
// =============================================================================

// AlertType 告警级别。
type AlertType string

const (
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
)

// BudgetAlert 阈值告警。不去重：重复越线产生重复告警。
type BudgetAlert struct {
	ID                string     `json:"id"`
	Type              AlertType  `json:"type"`
	Period            PeriodKind `json:"period"`
	Message           string     `json:"message"`
	Timestamp         time.Time  `json:"timestamp"`
	CurrentUsageRatio float64    `json:"current_usage_ratio"`
	Threshold         float64    `json:"threshold"`
	RecommendedAction string     `json:"recommended_action"`
}

// RemainingBudget 各周期剩余预算，下限为 0。
type RemainingBudget struct {
	Daily   float64 `json:"daily"`
	Monthly float64 `json:"monthly"`
}

// ProjectedUsage 各周期的用量外推值。
type ProjectedUsage struct {
	Daily   float64 `json:"daily"`
	Monthly float64 `json:"monthly"`
}
