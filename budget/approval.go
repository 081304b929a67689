package budget

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/BaSui01/promptgate/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🚦 审批闸门
// =============================================================================

// Gate 在请求执行前做成本审批，并登记已批准的 Token 配额。
//
// 审批通过后会创建一条配额记录，等待 Recorder 以实际用量结算。
// 超过 TTL 仍未结算的配额视为泄漏，由后台清扫回收。
type Gate struct {
	mu          sync.Mutex
	cost        *CostModel
	ledger      *Ledger
	allocations map[string]*types.BudgetAllocation
	ttl         time.Duration
	logger      *zap.Logger

	onReclaim func(alloc types.BudgetAllocation)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// now 可注入时钟，便于测试
	now func() time.Time
}

// NewGate 创建审批闸门。sweepInterval 为正时启动后台清扫 goroutine，
// 调用方负责在结束时 Close。
func NewGate(cost *CostModel, ledger *Ledger, ttl, sweepInterval time.Duration, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	g := &Gate{
		cost:        cost,
		ledger:      ledger,
		allocations: make(map[string]*types.BudgetAllocation),
		ttl:         ttl,
		logger:      logger.With(zap.String("component", "approval_gate")),
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}
	if sweepInterval > 0 {
		g.wg.Add(1)
		go g.sweepLoop(sweepInterval)
	}
	return g
}

// SetReclaimHook 注册配额被回收时的回调，用于指标上报。
func (g *Gate) SetReclaimHook(fn func(alloc types.BudgetAllocation)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onReclaim = fn
}

// RequestApproval 审批一笔预估用量。
//
// 结构化拒绝（Approved=false + Reason + Alternatives）不是错误；
// 错误仅在请求本身非法时返回。同一 RequestID 重复审批会替换旧配额，
// 任一时刻每个 RequestID 至多持有一条在途配额。
func (g *Gate) RequestApproval(req types.BudgetRequest) (types.BudgetApproval, error) {
	if req.RequestID == "" {
		return types.BudgetApproval{}, types.NewError(types.ErrInvalidRequest, "request_id must not be empty")
	}
	priority := req.Priority
	if priority == "" {
		priority = types.PriorityMedium
	}
	if !priority.Valid() {
		return types.BudgetApproval{}, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unknown priority %q", req.Priority))
	}

	estimatedCost, err := g.cost.Cost(req.EstimatedInputTokens, req.EstimatedOutputTokens)
	if err != nil {
		return types.BudgetApproval{}, err
	}

	remaining := g.ledger.Remaining()

	avail := g.ledger.CheckAvailability(estimatedCost, priority)
	if !avail.Available {
		return g.reject(req, estimatedCost, remaining.Daily, avail.Reason), nil
	}

	totalTokens := req.EstimatedInputTokens + req.EstimatedOutputTokens
	if limit := g.ledger.Config().MaxTokensPerRequest; totalTokens > limit {
		return g.reject(req, estimatedCost, remaining.Daily, fmt.Sprintf(
			"requested %d tokens exceeds per-request limit %d",
			totalTokens, limit,
		)), nil
	}

	if req.MaxCost > 0 && estimatedCost > req.MaxCost {
		return g.reject(req, estimatedCost, remaining.Daily, fmt.Sprintf(
			"estimated cost %.6f exceeds caller cost ceiling %.6f",
			estimatedCost, req.MaxCost,
		)), nil
	}

	now := g.now()
	alloc := &types.BudgetAllocation{
		RequestID:             req.RequestID,
		ToolName:              req.ToolName,
		EstimatedInputTokens:  req.EstimatedInputTokens,
		EstimatedOutputTokens: req.EstimatedOutputTokens,
		EstimatedCost:         estimatedCost,
		Priority:              priority,
		CreatedAt:             now,
		ExpiresAt:             now.Add(g.ttl),
	}

	g.mu.Lock()
	if _, exists := g.allocations[req.RequestID]; exists {
		g.logger.Debug("replacing existing allocation", zap.String("request_id", req.RequestID))
	}
	g.allocations[req.RequestID] = alloc
	g.mu.Unlock()

	g.logger.Info("budget approved",
		zap.String("request_id", req.RequestID),
		zap.String("tool", req.ToolName),
		zap.Float64("estimated_cost", estimatedCost),
		zap.String("priority", string(priority)),
	)

	return types.BudgetApproval{
		Approved:  true,
		RequestID: req.RequestID,
		AllocatedTokens: types.TokenAllocation{
			Input:  req.EstimatedInputTokens,
			Output: req.EstimatedOutputTokens,
		},
		EstimatedCost: estimatedCost,
	}, nil
}

// reject 构造带替代方案的结构化拒绝。
func (g *Gate) reject(req types.BudgetRequest, estimatedCost, dailyRemaining float64, reason string) types.BudgetApproval {
	g.logger.Info("budget rejected",
		zap.String("request_id", req.RequestID),
		zap.String("tool", req.ToolName),
		zap.Float64("estimated_cost", estimatedCost),
		zap.String("reason", reason),
	)
	return types.BudgetApproval{
		Approved:      false,
		RequestID:     req.RequestID,
		EstimatedCost: estimatedCost,
		Reason:        reason,
		Alternatives:  g.alternatives(req.EstimatedInputTokens, dailyRemaining),
	}
}

// alternatives 为被拒请求计算缩减建议:
// 缩减到请求量的 70% 与日剩余预算可负担量二者中的较小者，
// 并按缩减幅度给出降级策略。
func (g *Gate) alternatives(requestedInput int64, dailyRemaining float64) *types.Alternatives {
	if dailyRemaining < 0 {
		dailyRemaining = 0
	}

	reduced := float64(requestedInput) * 0.70
	rate := g.cost.Config().CostPerInputToken
	if rate > 0 {
		affordable := dailyRemaining / rate
		reduced = math.Min(reduced, affordable)
	}
	if reduced < 0 {
		reduced = 0
	}
	reducedTokens := int64(reduced)

	ratio := 1.0
	if requestedInput > 0 {
		ratio = float64(reducedTokens) / float64(requestedInput)
	}

	var strategy string
	switch {
	case ratio < 0.50:
		strategy = "use cached responses or defer to next budget period"
	case ratio < 0.80:
		strategy = "apply aggressive compression and remove examples"
	default:
		strategy = "reduce prompt complexity and use compression"
	}

	return &types.Alternatives{
		ReducedTokens:    reducedTokens,
		FallbackStrategy: strategy,
	}
}

// TakeAllocation 取走并移除指定请求的在途配额。
func (g *Gate) TakeAllocation(requestID string) (types.BudgetAllocation, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	alloc, ok := g.allocations[requestID]
	if !ok {
		return types.BudgetAllocation{}, false
	}
	delete(g.allocations, requestID)
	return *alloc, true
}

// ActiveAllocations 返回在途配额快照。
func (g *Gate) ActiveAllocations() []types.BudgetAllocation {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.BudgetAllocation, 0, len(g.allocations))
	for _, alloc := range g.allocations {
		out = append(out, *alloc)
	}
	return out
}

// sweepLoop 周期性回收过期配额，直到 Close。
func (g *Gate) sweepLoop(interval time.Duration) {
	defer g.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.sweepExpired()
		}
	}
}

// sweepExpired 回收所有已过期的在途配额，返回回收数量。
func (g *Gate) sweepExpired() int {
	now := g.now()

	g.mu.Lock()
	var reclaimed []types.BudgetAllocation
	for id, alloc := range g.allocations {
		if now.After(alloc.ExpiresAt) {
			reclaimed = append(reclaimed, *alloc)
			delete(g.allocations, id)
		}
	}
	hook := g.onReclaim
	g.mu.Unlock()

	for _, alloc := range reclaimed {
		g.logger.Warn("expired allocation reclaimed",
			zap.String("request_id", alloc.RequestID),
			zap.String("tool", alloc.ToolName),
			zap.Float64("estimated_cost", alloc.EstimatedCost),
			zap.Time("expired_at", alloc.ExpiresAt),
		)
		if hook != nil {
			hook(alloc)
		}
	}
	return len(reclaimed)
}

// Close 停止后台清扫并等待其退出。可安全重复调用。
func (g *Gate) Close() error {
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})
	g.wg.Wait()
	return nil
}
