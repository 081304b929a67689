package handlers

import (
	"net/http"
	"time"

	"github.com/BaSui01/promptgate/api"
	"github.com/BaSui01/promptgate/types"
	"go.uber.org/zap"
)

// =============================================================================
// 💰 预算接口 Handler
// =============================================================================

// BudgetService 预算面引擎接口
type BudgetService interface {
	RequestApproval(req types.BudgetRequest) (types.BudgetApproval, error)
	RecordUsage(requestID string, actualInputTokens, actualOutputTokens int64) (*types.UsageVariance, error)
	GetDailyUsage() types.UsagePeriodStats
	GetMonthlyUsage() types.UsagePeriodStats
	GetRemainingBudget() types.RemainingBudget
	GetProjectedUsage() types.ProjectedUsage
}

// BudgetHandler 预算接口处理器
type BudgetHandler struct {
	service BudgetService
	logger  *zap.Logger
}

// NewBudgetHandler 创建预算处理器
func NewBudgetHandler(service BudgetService, logger *zap.Logger) *BudgetHandler {
	return &BudgetHandler{
		service: service,
		logger:  logger,
	}
}

// HandleApproval 处理预算审批请求
// @Summary 预算审批
// @Description 对一次预估用量做预算审批，拒绝以 approved=false 表达
// @Tags 预算
// @Accept json
// @Produce json
// @Param request body api.ApprovalRequest true "审批请求"
// @Success 200 {object} api.ApprovalResponse "审批结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "内部错误"
// @Security ApiKeyAuth
// @Router /v1/budget/approval [post]
func (h *BudgetHandler) HandleApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	// 验证 Content-Type
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	// 解码请求
	var req api.ApprovalRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	// 验证请求
	if err := h.validateApprovalRequest(&req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	// 调用引擎
	start := time.Now()
	approval, err := h.service.RequestApproval(req.ToBudgetRequest())
	duration := time.Since(start)

	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	// 记录日志
	h.logger.Info("budget approval",
		zap.String("request_id", req.RequestID),
		zap.String("tool", req.ToolName),
		zap.Bool("approved", approval.Approved),
		zap.Float64("estimated_cost", approval.EstimatedCost),
		zap.Duration("duration", duration),
	)

	WriteSuccess(w, r, approval)
}

// HandleUsageReport 处理实际用量结算请求
// @Summary 用量结算
// @Description 以实际 Token 用量结算一次已审批请求，未知请求为无害空操作
// @Tags 预算
// @Accept json
// @Produce json
// @Param request body api.UsageReport true "用量上报"
// @Success 200 {object} api.UsageVarianceResponse "预估/实际偏差"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "内部错误"
// @Security ApiKeyAuth
// @Router /v1/budget/usage [post]
func (h *BudgetHandler) HandleUsageReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var report api.UsageReport
	if err := DecodeJSONBody(w, r, &report, h.logger); err != nil {
		return
	}

	if err := h.validateUsageReport(&report); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	variance, err := h.service.RecordUsage(report.RequestID, report.ActualInputTokens, report.ActualOutputTokens)
	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	// 未知请求结算为空操作，variance 为 nil
	if variance == nil {
		h.logger.Debug("usage report for unknown request",
			zap.String("request_id", report.RequestID),
		)
		WriteSuccess(w, r, nil)
		return
	}

	h.logger.Info("usage recorded",
		zap.String("request_id", report.RequestID),
		zap.Int64("actual_tokens", variance.ActualTokens),
		zap.Int64("token_delta", variance.TokenDelta),
		zap.Float64("cost_delta", variance.CostDelta),
	)

	WriteSuccess(w, r, variance)
}

// HandleDailyUsage 处理当日用量查询
// @Summary 当日用量
// @Description 返回当日用量快照
// @Tags 预算
// @Produce json
// @Success 200 {object} api.PeriodUsageResponse "用量统计"
// @Security ApiKeyAuth
// @Router /v1/budget/usage/daily [get]
func (h *BudgetHandler) HandleDailyUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	WriteSuccess(w, r, h.service.GetDailyUsage())
}

// HandleMonthlyUsage 处理当月用量查询
// @Summary 当月用量
// @Description 返回当月用量快照
// @Tags 预算
// @Produce json
// @Success 200 {object} api.PeriodUsageResponse "用量统计"
// @Security ApiKeyAuth
// @Router /v1/budget/usage/monthly [get]
func (h *BudgetHandler) HandleMonthlyUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	WriteSuccess(w, r, h.service.GetMonthlyUsage())
}

// HandleRemaining 处理剩余预算查询
// @Summary 剩余预算
// @Description 返回各周期剩余预算，下限为 0
// @Tags 预算
// @Produce json
// @Success 200 {object} api.RemainingBudgetResponse "剩余预算"
// @Security ApiKeyAuth
// @Router /v1/budget/remaining [get]
func (h *BudgetHandler) HandleRemaining(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	WriteSuccess(w, r, h.service.GetRemainingBudget())
}

// HandleProjected 处理外推用量查询
// @Summary 外推用量
// @Description 按当前消费速率外推各周期的期末用量
// @Tags 预算
// @Produce json
// @Success 200 {object} api.ProjectedUsageResponse "外推用量"
// @Security ApiKeyAuth
// @Router /v1/budget/projected [get]
func (h *BudgetHandler) HandleProjected(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	WriteSuccess(w, r, h.service.GetProjectedUsage())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// validateApprovalRequest 验证审批请求
func (h *BudgetHandler) validateApprovalRequest(req *api.ApprovalRequest) *types.Error {
	if req.RequestID == "" {
		return types.NewError(types.ErrInvalidRequest, "request_id is required")
	}

	if req.ToolName == "" {
		return types.NewError(types.ErrInvalidRequest, "tool_name is required")
	}

	if req.EstimatedInputTokens < 0 || req.EstimatedOutputTokens < 0 {
		return types.NewError(types.ErrInvalidRequest, "estimated tokens must not be negative")
	}

	// 优先级缺省为 medium，由引擎补齐
	if req.Priority != "" && !types.Priority(req.Priority).Valid() {
		return types.NewError(types.ErrInvalidRequest, "priority must be one of low, medium, high")
	}

	if req.MaxCost < 0 {
		return types.NewError(types.ErrInvalidRequest, "max_cost must not be negative")
	}

	return nil
}

// validateUsageReport 验证用量上报
func (h *BudgetHandler) validateUsageReport(report *api.UsageReport) *types.Error {
	if report.RequestID == "" {
		return types.NewError(types.ErrInvalidRequest, "request_id is required")
	}

	if report.ActualInputTokens < 0 || report.ActualOutputTokens < 0 {
		return types.NewError(types.ErrInvalidRequest, "actual tokens must not be negative")
	}

	return nil
}

// handleEngineError 处理引擎错误
func (h *BudgetHandler) handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if typedErr, ok := err.(*types.Error); ok {
		WriteError(w, r, typedErr, h.logger)
		return
	}

	// 未知错误，包装为内部错误
	internalErr := types.NewError(types.ErrInternalError, "budget engine error").
		WithCause(err).
		WithRetryable(false)

	WriteError(w, r, internalErr, h.logger)
}
