package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/promptgate/api"
	"github.com/BaSui01/promptgate/optimizer"
	"github.com/BaSui01/promptgate/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🎯 优化接口 Handler
// =============================================================================

// defaultOptimizeTimeout 优化请求的默认超时。
const defaultOptimizeTimeout = 30 * time.Second

// OptimizeService 优化面引擎接口
type OptimizeService interface {
	Optimize(ctx context.Context, req types.OptimizationRequest) (types.OptimizationResult, error)
	OptimizerStats() optimizer.Stats
}

// OptimizeHandler 优化接口处理器
type OptimizeHandler struct {
	service OptimizeService
	logger  *zap.Logger
}

// NewOptimizeHandler 创建优化处理器
func NewOptimizeHandler(service OptimizeService, logger *zap.Logger) *OptimizeHandler {
	return &OptimizeHandler{
		service: service,
		logger:  logger,
	}
}

// HandleOptimize 处理提示词优化请求
// @Summary 提示词优化
// @Description 按策略优化提示词，质量不达标以 success=false 加回退建议表达
// @Tags 优化
// @Accept json
// @Produce json
// @Param request body api.OptimizeRequest true "优化请求"
// @Success 200 {object} api.OptimizeResponse "优化结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "内部错误"
// @Security ApiKeyAuth
// @Router /v1/optimize [post]
func (h *OptimizeHandler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	// 验证 Content-Type
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	// 解码请求
	var req api.OptimizeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	// 验证请求
	if err := h.validateOptimizeRequest(&req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	// 设置超时
	timeout := defaultOptimizeTimeout
	if req.Timeout != "" {
		if d, err := time.ParseDuration(req.Timeout); err == nil {
			timeout = d
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	// 调用引擎
	start := time.Now()
	result, err := h.service.Optimize(ctx, req.ToOptimizationRequest())
	duration := time.Since(start)

	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	// 记录日志
	h.logger.Info("prompt optimization",
		zap.String("tool", req.ToolName),
		zap.String("task_type", req.TaskType),
		zap.String("strategy", string(result.Strategy)),
		zap.Bool("success", result.Success),
		zap.Int64("token_reduction", result.TokenReduction),
		zap.Float64("quality_score", result.QualityScore),
		zap.Duration("duration", duration),
	)

	WriteSuccess(w, r, result)
}

// HandleStats 处理优化器统计查询
// @Summary 优化器统计
// @Description 返回优化器累计统计
// @Tags 优化
// @Produce json
// @Success 200 {object} api.OptimizerStatsResponse "累计统计"
// @Security ApiKeyAuth
// @Router /v1/optimize/stats [get]
func (h *OptimizeHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	WriteSuccess(w, r, h.service.OptimizerStats())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// validateOptimizeRequest 验证优化请求
func (h *OptimizeHandler) validateOptimizeRequest(req *api.OptimizeRequest) *types.Error {
	if req.ToolName == "" {
		return types.NewError(types.ErrInvalidRequest, "tool_name is required")
	}

	if req.OriginalPrompt == "" {
		return types.NewError(types.ErrInvalidRequest, "original_prompt is required")
	}

	if req.TaskType == "" {
		return types.NewError(types.ErrInvalidRequest, "task_type is required")
	}

	// 验证压缩比例
	if req.TargetReduction < 0 || req.TargetReduction >= 1 {
		return types.NewError(types.ErrInvalidRequest, "target_reduction must be in [0, 1)")
	}

	// 验证质量下限
	if req.QualityThreshold < 0 || req.QualityThreshold > 1 {
		return types.NewError(types.ErrInvalidRequest, "quality_threshold must be between 0 and 1")
	}

	if req.MaxTokens < 0 {
		return types.NewError(types.ErrInvalidRequest, "max_tokens must not be negative")
	}

	if req.Strategy != "" && !types.Strategy(req.Strategy).Valid() {
		return types.NewError(types.ErrInvalidRequest, "unknown strategy")
	}

	return nil
}

// handleEngineError 处理引擎错误
func (h *OptimizeHandler) handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if typedErr, ok := err.(*types.Error); ok {
		WriteError(w, r, typedErr, h.logger)
		return
	}

	internalErr := types.NewError(types.ErrInternalError, "optimizer error").
		WithCause(err).
		WithRetryable(false)

	WriteError(w, r, internalErr, h.logger)
}
