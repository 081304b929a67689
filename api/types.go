package api

import (
	"github.com/BaSui01/promptgate/budget"
	"github.com/BaSui01/promptgate/optimizer"
	"github.com/BaSui01/promptgate/types"
)

// =============================================================================
// 预算审批类型
// =============================================================================

// ApprovalRequest代表预算审批请求。
// @Description 预算审批请求结构
type ApprovalRequest struct {
	// 调用方生成的请求 ID，结算时凭此对账
	RequestID string `json:"request_id" example:"req-123" binding:"required"`
	// 发起请求的工具名称
	ToolName string `json:"tool_name" example:"code-review" binding:"required"`
	// 预估输入 Token 数
	EstimatedInputTokens int64 `json:"estimated_input_tokens" example:"1200"`
	// 预估输出 Token 数
	EstimatedOutputTokens int64 `json:"estimated_output_tokens" example:"800"`
	// 优先级（low、medium、high），缺省为 medium
	Priority string `json:"priority,omitempty" example:"medium"`
	// 单次请求成本上限（0 表示不设上限）
	MaxCost float64 `json:"max_cost,omitempty" example:"0.5"`
}

// ToBudgetRequest 转换为引擎侧的预算请求。
func (r *ApprovalRequest) ToBudgetRequest() types.BudgetRequest {
	return types.BudgetRequest{
		RequestID:             r.RequestID,
		ToolName:              r.ToolName,
		EstimatedInputTokens:  r.EstimatedInputTokens,
		EstimatedOutputTokens: r.EstimatedOutputTokens,
		Priority:              types.Priority(r.Priority),
		MaxCost:               r.MaxCost,
	}
}

// ApprovalResponse is a type alias for types.BudgetApproval to avoid duplicate definitions.
// The canonical definition lives in types.BudgetApproval (types/budget.go).
type ApprovalResponse = types.BudgetApproval

// TokenAllocation is a type alias for types.TokenAllocation.
type TokenAllocation = types.TokenAllocation

// Alternatives is a type alias for types.Alternatives.
type Alternatives = types.Alternatives

// =============================================================================
// 用量结算类型
// =============================================================================

// UsageReport代表实际用量上报请求。
// @Description 用量结算请求结构
type UsageReport struct {
	// 审批时使用的请求 ID
	RequestID string `json:"request_id" example:"req-123" binding:"required"`
	// 实际输入 Token 数
	ActualInputTokens int64 `json:"actual_input_tokens" example:"1100"`
	// 实际输出 Token 数
	ActualOutputTokens int64 `json:"actual_output_tokens" example:"950"`
}

// UsageVarianceResponse is a type alias for types.UsageVariance.
// The canonical definition lives in types.UsageVariance (types/token.go).
type UsageVarianceResponse = types.UsageVariance

// =============================================================================
// 用量查询类型
// =============================================================================

// PeriodUsageResponse is a type alias for types.UsagePeriodStats.
// The canonical definition lives in types.UsagePeriodStats (types/budget.go).
type PeriodUsageResponse = types.UsagePeriodStats

// RemainingBudgetResponse is a type alias for types.RemainingBudget.
type RemainingBudgetResponse = types.RemainingBudget

// ProjectedUsageResponse is a type alias for types.ProjectedUsage.
type ProjectedUsageResponse = types.ProjectedUsage

// =============================================================================
// 告警类型
// =============================================================================

// AlertEvent is a type alias for types.BudgetAlert.
// The canonical definition lives in types.BudgetAlert (types/budget.go).
type AlertEvent = types.BudgetAlert

// AlertListResponse 表示告警列表。
// @Description 告警列表响应
type AlertListResponse struct {
	// 告警列表，旧告警在前
	Alerts []AlertEvent `json:"alerts"`
	// 告警数量
	Count int `json:"count" example:"3"`
}

// =============================================================================
// 提示词优化类型
// =============================================================================

// OptimizeRequest代表提示词优化请求。
// @Description 提示词优化请求结构
type OptimizeRequest struct {
	// 发起请求的工具名称
	ToolName string `json:"tool_name" example:"code-review" binding:"required"`
	// 待优化的原始提示词
	OriginalPrompt string `json:"original_prompt" example:"Please review the following code..." binding:"required"`
	// 任务类别（generation、planning、analysis、refactoring、debugging、documentation）
	TaskType string `json:"task_type" example:"analysis" binding:"required"`
	// 用户经验级别（beginner、intermediate、advanced）
	UserLevel string `json:"user_level,omitempty" example:"advanced"`
	// 期望输出格式（text、json、markdown、code）
	OutputFormat string `json:"output_format,omitempty" example:"markdown"`
	// 时间约束（immediate、standard、relaxed）
	TimeConstraint string `json:"time_constraint,omitempty" example:"standard"`
	// 必须保留的约束语句
	Constraints []string `json:"constraints,omitempty"`
	// 期望压缩比例（0-1，0 表示未设置）
	TargetReduction float64 `json:"target_reduction,omitempty" example:"0.3"`
	// 优化结果 Token 上限（0 表示未设置）
	MaxTokens int64 `json:"max_tokens,omitempty" example:"2000"`
	// 质量下限（0-1，低于则返回回退建议）
	QualityThreshold float64 `json:"quality_threshold,omitempty" example:"0.7"`
	// 会话 ID，供上下文感知策略使用
	SessionID string `json:"session_id,omitempty" example:"sess-42"`
	// 指定策略（为空时由规则自动选择）
	Strategy string `json:"strategy,omitempty" example:"compression"`
	// 显式用户画像
	UserProfile *UserProfilePayload `json:"user_profile,omitempty"`
	// 请求超时时长
	Timeout string `json:"timeout,omitempty" example:"10s"`
}

// UserProfilePayload 表示显式用户画像。
// @Description 用户画像结构
type UserProfilePayload struct {
	// 用户分段标识
	Segment string `json:"segment" example:"backend"`
	// 偏好输出格式
	PreferredFormat string `json:"preferred_format,omitempty" example:"code"`
	// 专长领域
	ExpertiseAreas []string `json:"expertise_areas,omitempty"`
}

// ToOptimizationRequest 转换为引擎侧的优化请求。Timeout 由调用方单独解析。
// 线上传输的 quality_threshold 是 0-1 比例，引擎质量分是 0-100 量纲，在此换算。
func (r *OptimizeRequest) ToOptimizationRequest() types.OptimizationRequest {
	req := types.OptimizationRequest{
		ToolName:         r.ToolName,
		OriginalPrompt:   r.OriginalPrompt,
		TaskType:         types.TaskType(r.TaskType),
		UserLevel:        types.UserLevel(r.UserLevel),
		OutputFormat:     types.OutputFormat(r.OutputFormat),
		TimeConstraint:   types.TimeConstraint(r.TimeConstraint),
		Constraints:      r.Constraints,
		TargetReduction:  r.TargetReduction,
		MaxTokens:        r.MaxTokens,
		QualityThreshold: r.QualityThreshold * 100,
		SessionID:        r.SessionID,
		Strategy:         types.Strategy(r.Strategy),
	}
	if r.UserProfile != nil {
		req.UserProfile = &types.UserProfile{
			Segment:         r.UserProfile.Segment,
			PreferredFormat: types.OutputFormat(r.UserProfile.PreferredFormat),
			ExpertiseAreas:  r.UserProfile.ExpertiseAreas,
		}
	}
	return req
}

// OptimizeResponse is a type alias for types.OptimizationResult.
// The canonical definition lives in types.OptimizationResult (types/optimize.go).
type OptimizeResponse = types.OptimizationResult

// FallbackSuggestion is a type alias for types.FallbackSuggestion.
type FallbackSuggestion = types.FallbackSuggestion

// OptimizerStatsResponse is a type alias for optimizer.Stats.
// The canonical definition lives in optimizer.Stats (optimizer/optimizer.go).
type OptimizerStatsResponse = optimizer.Stats

// =============================================================================
// 配置管理类型
// =============================================================================

// BudgetConfigPatch is a type alias for budget.ConfigPatch.
// 字段全部为指针，nil 表示不修改该字段。
type BudgetConfigPatch = budget.ConfigPatch

// CostConfigPatch is a type alias for budget.CostConfigPatch.
type CostConfigPatch = budget.CostConfigPatch

// BudgetConfigResponse is a type alias for budget.Config.
type BudgetConfigResponse = budget.Config

// CostConfigResponse is a type alias for budget.CostConfig.
type CostConfigResponse = budget.CostConfig

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse表示错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	// 错误详情
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 表示错误详细信息。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"INVALID_REQUEST"`
	// 人类可读的错误消息
	Message string `json:"message" example:"Invalid request parameters"`
	// HTTP 状态码
	HTTPStatus int `json:"http_status,omitempty" example:"400"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
	// 返回错误的工具
	Tool string `json:"tool,omitempty" example:"code-review"`
}
