package handlers

import (
	"net/http"

	"github.com/BaSui01/promptgate/api"
	"github.com/BaSui01/promptgate/budget"
	"github.com/BaSui01/promptgate/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🔧 配置接口 Handler
// =============================================================================

// ConfigService 配置面引擎接口
type ConfigService interface {
	UpdateBudgetConfig(patch budget.ConfigPatch) error
	UpdateCostConfig(patch budget.CostConfigPatch) error
	BudgetConfig() budget.Config
	CostConfig() budget.CostConfig
}

// ConfigHandler 运行时配置处理器。
// 局部更新先校验后合并，校验失败时现有配置不变。
type ConfigHandler struct {
	service ConfigService
	logger  *zap.Logger
}

// NewConfigHandler 创建配置处理器
func NewConfigHandler(service ConfigService, logger *zap.Logger) *ConfigHandler {
	return &ConfigHandler{
		service: service,
		logger:  logger,
	}
}

// HandleBudgetConfig 处理预算配置的查询与局部更新
// @Summary 预算配置
// @Description GET 返回当前预算配置，PATCH 做校验后的局部更新并返回更新后快照
// @Tags 配置
// @Accept json
// @Produce json
// @Param request body api.BudgetConfigPatch false "局部更新（仅 PATCH）"
// @Success 200 {object} api.BudgetConfigResponse "当前配置"
// @Failure 400 {object} Response "无效配置"
// @Security ApiKeyAuth
// @Router /v1/config/budget [patch]
func (h *ConfigHandler) HandleBudgetConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, r, h.service.BudgetConfig())
	case http.MethodPatch:
		h.patchBudgetConfig(w, r)
	default:
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleCostConfig 处理计价配置的查询与局部更新
// @Summary 计价配置
// @Description GET 返回当前计价配置，PATCH 做校验后的局部更新并返回更新后快照
// @Tags 配置
// @Accept json
// @Produce json
// @Param request body api.CostConfigPatch false "局部更新（仅 PATCH）"
// @Success 200 {object} api.CostConfigResponse "当前配置"
// @Failure 400 {object} Response "无效配置"
// @Security ApiKeyAuth
// @Router /v1/config/cost [patch]
func (h *ConfigHandler) HandleCostConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, r, h.service.CostConfig())
	case http.MethodPatch:
		h.patchCostConfig(w, r)
	default:
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// =============================================================================
// 🔄 局部更新实现
// =============================================================================

func (h *ConfigHandler) patchBudgetConfig(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var patch api.BudgetConfigPatch
	if err := DecodeJSONBody(w, r, &patch, h.logger); err != nil {
		return
	}

	if err := h.service.UpdateBudgetConfig(patch); err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	updated := h.service.BudgetConfig()
	h.logger.Info("budget config updated",
		zap.Float64("daily_budget", updated.DailyBudget),
		zap.Float64("monthly_budget", updated.MonthlyBudget),
		zap.Int64("max_tokens_per_request", updated.MaxTokensPerRequest),
	)

	WriteSuccess(w, r, updated)
}

func (h *ConfigHandler) patchCostConfig(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var patch api.CostConfigPatch
	if err := DecodeJSONBody(w, r, &patch, h.logger); err != nil {
		return
	}

	if err := h.service.UpdateCostConfig(patch); err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	updated := h.service.CostConfig()
	h.logger.Info("cost config updated",
		zap.Float64("cost_per_input_token", updated.CostPerInputToken),
		zap.Float64("cost_per_output_token", updated.CostPerOutputToken),
		zap.String("currency", updated.Currency),
	)

	WriteSuccess(w, r, updated)
}

// handleEngineError 处理引擎错误
func (h *ConfigHandler) handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if typedErr, ok := err.(*types.Error); ok {
		WriteError(w, r, typedErr, h.logger)
		return
	}

	internalErr := types.NewError(types.ErrInternalError, "config update error").
		WithCause(err)

	WriteError(w, r, internalErr, h.logger)
}
