package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/BaSui01/promptgate/api"
	"github.com/BaSui01/promptgate/budget"
	"github.com/BaSui01/promptgate/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// 🔔 告警接口 Handler
// =============================================================================

// alertStreamWriteTimeout 单条告警推送的写超时。
const alertStreamWriteTimeout = 5 * time.Second

// alertSubscriberBuffer 每个订阅通道的缓冲大小。
const alertSubscriberBuffer = 16

// AlertSource 告警面引擎接口
type AlertSource interface {
	GetAlerts() []types.BudgetAlert
	OnAlert(h budget.AlertHandler)
}

// AlertsHandler 告警接口处理器。
// 构造时向引擎注册一次回调，按 WebSocket 连接维护订阅通道做扇出。
// 慢消费者丢弃新告警而不是阻塞广播。
type AlertsHandler struct {
	source AlertSource
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[chan types.BudgetAlert]struct{}
}

// NewAlertsHandler 创建告警处理器并向引擎注册广播回调。
func NewAlertsHandler(source AlertSource, logger *zap.Logger) *AlertsHandler {
	h := &AlertsHandler{
		source: source,
		logger: logger,
		subs:   make(map[chan types.BudgetAlert]struct{}),
	}
	source.OnAlert(h.broadcast)
	return h
}

// HandleList 处理告警列表查询
// @Summary 告警列表
// @Description 返回告警历史，旧告警在前；limit 限定返回最近 N 条
// @Tags 告警
// @Produce json
// @Param limit query int false "最大返回条数（0 表示全部）"
// @Success 200 {object} api.AlertListResponse "告警列表"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /v1/alerts [get]
func (h *AlertsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a non-negative integer", h.logger)
			return
		}
		limit = n
	}

	alerts := h.source.GetAlerts()
	if limit > 0 && limit < len(alerts) {
		// 环形缓冲旧告警在前，截取尾部即最近 N 条
		alerts = alerts[len(alerts)-limit:]
	}

	WriteSuccess(w, r, api.AlertListResponse{
		Alerts: alerts,
		Count:  len(alerts),
	})
}

// HandleStream 处理告警实时推送
// @Summary 告警推送
// @Description 升级为 WebSocket 连接，新告警产生时以 JSON 文本帧推送
// @Tags 告警
// @Success 101 {string} string "协议切换"
// @Security ApiKeyAuth
// @Router /v1/alerts/stream [get]
func (h *AlertsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	// 连接只推不收，CloseRead 在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())

	sub := h.subscribe()
	defer h.unsubscribe(sub)

	h.logger.Info("alert stream opened",
		zap.String("remote_addr", r.RemoteAddr),
	)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "closing")
			return
		case alert := <-sub:
			data, err := json.Marshal(alert)
			if err != nil {
				h.logger.Error("marshal alert failed", zap.Error(err))
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, alertStreamWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug("alert stream write failed", zap.Error(err))
				return
			}
		}
	}
}

// =============================================================================
// 🔧 订阅管理
// =============================================================================

// broadcast 向所有订阅通道扇出一条告警。通道满时丢弃。
func (h *AlertsHandler) broadcast(alert types.BudgetAlert) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- alert:
		default:
			// 慢消费者，丢弃
		}
	}
}

// subscribe 注册一个新的订阅通道。
func (h *AlertsHandler) subscribe() chan types.BudgetAlert {
	ch := make(chan types.BudgetAlert, alertSubscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// unsubscribe 注销订阅通道。
func (h *AlertsHandler) unsubscribe(ch chan types.BudgetAlert) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// SubscriberCount 返回当前订阅连接数。
func (h *AlertsHandler) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
