package budget

import (
	"testing"
	"time"

	"github.com/BaSui01/promptgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestGate(t *testing.T, budgetCfg Config) (*Gate, *Ledger) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	model, err := NewCostModel(DefaultCostConfig())
	require.NoError(t, err)
	ledger, err := NewLedger(budgetCfg, logger)
	require.NoError(t, err)
	// 清扫间隔 0: 测试中不起后台 goroutine
	gate := NewGate(model, ledger, 10*time.Minute, 0, logger)
	t.Cleanup(func() { _ = gate.Close() })
	return gate, ledger
}

func TestGate_RequestApproval_Approved(t *testing.T) {
	gate, _ := newTestGate(t, DefaultConfig())

	approval, err := gate.RequestApproval(types.BudgetRequest{
		RequestID:             "req-1",
		ToolName:              "code-review",
		EstimatedInputTokens:  500,
		EstimatedOutputTokens: 300,
		Priority:              types.PriorityMedium,
	})
	require.NoError(t, err)

	assert.True(t, approval.Approved)
	assert.Equal(t, "req-1", approval.RequestID)
	assert.Equal(t, int64(500), approval.AllocatedTokens.Input)
	assert.Equal(t, int64(300), approval.AllocatedTokens.Output)
	assert.InDelta(t, 0.000033, approval.EstimatedCost, 1e-9)
	assert.Empty(t, approval.Reason)
	assert.Nil(t, approval.Alternatives)

	allocs := gate.ActiveAllocations()
	require.Len(t, allocs, 1)
	assert.Equal(t, "req-1", allocs[0].RequestID)
	assert.True(t, allocs[0].ExpiresAt.After(allocs[0].CreatedAt))
}

func TestGate_RequestApproval_AbsurdRequestRejected(t *testing.T) {
	gate, _ := newTestGate(t, DefaultConfig())

	approval, err := gate.RequestApproval(types.BudgetRequest{
		RequestID:             "req-absurd",
		ToolName:              "bulk-generation",
		EstimatedInputTokens:  2_000_000_000,
		EstimatedOutputTokens: 1_000_000_000,
		Priority:              types.PriorityLow,
	})
	require.NoError(t, err)

	assert.False(t, approval.Approved)
	assert.Contains(t, approval.Reason, "daily budget")
	require.NotNil(t, approval.Alternatives)
	assert.NotEmpty(t, approval.Alternatives.FallbackStrategy)
	// 日剩余只能负担远少于请求量的 Token
	assert.Less(t, approval.Alternatives.ReducedTokens, int64(2_000_000_000))
	assert.Empty(t, gate.ActiveAllocations())
}

func TestGate_RequestApproval_AlternativeTiers(t *testing.T) {
	// 预算型拒绝: 日剩余只够请求量的零头，建议缓存或延期
	cfg := DefaultConfig()
	cfg.DailyBudget = 0.0009
	cfg.MonthlyBudget = 2000
	gate, _ := newTestGate(t, cfg)

	approval, err := gate.RequestApproval(types.BudgetRequest{
		RequestID:            "req-tier-heavy",
		ToolName:             "generation",
		EstimatedInputTokens: 1_000_000,
		Priority:             types.PriorityMedium,
	})
	require.NoError(t, err)
	require.False(t, approval.Approved)
	require.NotNil(t, approval.Alternatives)
	assert.InDelta(t, 30, approval.Alternatives.ReducedTokens, 1)
	assert.Equal(t, "use cached responses or defer to next budget period",
		approval.Alternatives.FallbackStrategy)
}

func TestGate_RequestApproval_SeventyPercentCap(t *testing.T) {
	// 预算充裕但被单请求上限拒绝: 缩减量由 70% 规则决定
	cfg := DefaultConfig()
	cfg.MaxTokensPerRequest = 1000
	gate, _ := newTestGate(t, cfg)

	approval, err := gate.RequestApproval(types.BudgetRequest{
		RequestID:            "req-cap",
		ToolName:             "generation",
		EstimatedInputTokens: 2000,
		Priority:             types.PriorityMedium,
	})
	require.NoError(t, err)
	require.False(t, approval.Approved)
	require.NotNil(t, approval.Alternatives)
	assert.Equal(t, int64(1400), approval.Alternatives.ReducedTokens)
	assert.Equal(t, "apply aggressive compression and remove examples",
		approval.Alternatives.FallbackStrategy)
}

func TestGate_RequestApproval_HighPriorityIdempotent(t *testing.T) {
	gate, ledger := newTestGate(t, DefaultConfig())
	require.NoError(t, ledger.RecordUsage(0, 0, 99.999))

	// 日剩余 0.001，请求成本 0.00105 落在 110% 容差内
	req := types.BudgetRequest{
		RequestID:            "req-high",
		ToolName:             "hotfix-review",
		EstimatedInputTokens: 35000,
		Priority:             types.PriorityHigh,
	}

	for i := 0; i < 3; i++ {
		approval, err := gate.RequestApproval(req)
		require.NoError(t, err)
		assert.True(t, approval.Approved, "attempt %d", i)
	}

	// 重复审批替换旧配额，同一请求至多一条在途配额
	assert.Len(t, gate.ActiveAllocations(), 1)
}

func TestGate_RequestApproval_Validation(t *testing.T) {
	gate, _ := newTestGate(t, DefaultConfig())

	_, err := gate.RequestApproval(types.BudgetRequest{ToolName: "x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = gate.RequestApproval(types.BudgetRequest{
		RequestID: "req-bad-prio",
		Priority:  types.Priority("urgent"),
	})
	require.Error(t, err)

	_, err = gate.RequestApproval(types.BudgetRequest{
		RequestID:            "req-neg",
		EstimatedInputTokens: -5,
	})
	require.Error(t, err)
}

func TestGate_RequestApproval_DefaultPriority(t *testing.T) {
	gate, _ := newTestGate(t, DefaultConfig())

	approval, err := gate.RequestApproval(types.BudgetRequest{
		RequestID:            "req-noprio",
		EstimatedInputTokens: 100,
	})
	require.NoError(t, err)
	require.True(t, approval.Approved)

	allocs := gate.ActiveAllocations()
	require.Len(t, allocs, 1)
	assert.Equal(t, types.PriorityMedium, allocs[0].Priority)
}

func TestGate_RequestApproval_PerRequestTokenLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokensPerRequest = 100
	gate, _ := newTestGate(t, cfg)

	approval, err := gate.RequestApproval(types.BudgetRequest{
		RequestID:             "req-toolarge",
		EstimatedInputTokens:  90,
		EstimatedOutputTokens: 20,
		Priority:              types.PriorityMedium,
	})
	require.NoError(t, err)
	assert.False(t, approval.Approved)
	assert.Contains(t, approval.Reason, "per-request limit")
	assert.NotNil(t, approval.Alternatives)
}

func TestGate_RequestApproval_CallerCostCeiling(t *testing.T) {
	gate, _ := newTestGate(t, DefaultConfig())

	approval, err := gate.RequestApproval(types.BudgetRequest{
		RequestID:            "req-ceiling",
		EstimatedInputTokens: 10000,
		Priority:             types.PriorityMedium,
		MaxCost:              0.0001,
	})
	require.NoError(t, err)
	assert.False(t, approval.Approved)
	assert.Contains(t, approval.Reason, "cost ceiling")
}

func TestGate_TakeAllocation(t *testing.T) {
	gate, _ := newTestGate(t, DefaultConfig())

	_, err := gate.RequestApproval(types.BudgetRequest{
		RequestID:            "req-take",
		EstimatedInputTokens: 100,
	})
	require.NoError(t, err)

	alloc, ok := gate.TakeAllocation("req-take")
	require.True(t, ok)
	assert.Equal(t, "req-take", alloc.RequestID)

	// 取走后不可再取
	_, ok = gate.TakeAllocation("req-take")
	assert.False(t, ok)

	_, ok = gate.TakeAllocation("never-seen")
	assert.False(t, ok)
}

func TestGate_SweepExpired(t *testing.T) {
	gate, _ := newTestGate(t, DefaultConfig())

	var reclaimed []string
	gate.SetReclaimHook(func(alloc types.BudgetAllocation) {
		reclaimed = append(reclaimed, alloc.RequestID)
	})

	_, err := gate.RequestApproval(types.BudgetRequest{
		RequestID:            "req-stale",
		EstimatedInputTokens: 100,
	})
	require.NoError(t, err)

	// 把时钟拨过 TTL 再清扫
	gate.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	assert.Equal(t, 1, gate.sweepExpired())
	assert.Empty(t, gate.ActiveAllocations())
	assert.Equal(t, []string{"req-stale"}, reclaimed)

	// 空表清扫无事发生
	assert.Equal(t, 0, gate.sweepExpired())
}

func TestGate_CloseIdempotent(t *testing.T) {
	gate, _ := newTestGate(t, DefaultConfig())
	require.NoError(t, gate.Close())
	require.NoError(t, gate.Close())
}
