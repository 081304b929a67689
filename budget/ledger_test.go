package budget

import (
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/promptgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

func newTestLedger(t *testing.T, cfg Config) *Ledger {
	t.Helper()
	l, err := NewLedger(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return l
}

// fixClock 将账本时钟固定到指定时刻并重建周期。
func fixClock(l *Ledger, at time.Time) *time.Time {
	cur := at
	l.now = func() time.Time { return cur }
	l.Reset()
	return &cur
}

func TestLedger_Remaining_NoUsage(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())

	rem := l.Remaining()
	assert.Equal(t, 100.0, rem.Daily)
	assert.Equal(t, 2000.0, rem.Monthly)
}

func TestLedger_RecordUsage_Accumulates(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())

	require.NoError(t, l.RecordUsage(100, 50, 1.5))
	require.NoError(t, l.RecordUsage(200, 50, 2.5))

	daily := l.DailyUsage()
	assert.Equal(t, int64(300), daily.TotalTokens.Input)
	assert.Equal(t, int64(100), daily.TotalTokens.Output)
	assert.Equal(t, int64(400), daily.TotalTokens.Total)
	assert.InDelta(t, 4.0, daily.TotalCost, 1e-9)
	assert.Equal(t, int64(2), daily.RequestCount)
	assert.InDelta(t, 200.0, daily.AverageTokensPerRequest, 1e-9)

	// 月周期独立累计同样的值
	monthly := l.MonthlyUsage()
	assert.Equal(t, int64(400), monthly.TotalTokens.Total)
	assert.Equal(t, int64(2), monthly.RequestCount)
}

func TestLedger_RecordUsage_Negative(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())

	require.Error(t, l.RecordUsage(-1, 0, 0))
	require.Error(t, l.RecordUsage(0, -1, 0))
	require.Error(t, l.RecordUsage(0, 0, -0.01))
	assert.Equal(t, int64(0), l.DailyUsage().RequestCount)
}

func TestLedger_Remaining_FloorsAtZero(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())

	// 高优先级超额可以把实际用量推过预算线
	require.NoError(t, l.RecordUsage(0, 0, 150))

	rem := l.Remaining()
	assert.Equal(t, 0.0, rem.Daily)
	assert.Equal(t, 1850.0, rem.Monthly)
}

func TestLedger_CheckAvailability_MonthlyHardCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyBudget = 1000
	cfg.MonthlyBudget = 150
	l := newTestLedger(t, cfg)
	require.NoError(t, l.RecordUsage(0, 0, 140))

	// 月剩余 10，日剩余 860
	for _, p := range []types.Priority{types.PriorityLow, types.PriorityMedium, types.PriorityHigh} {
		got := l.CheckAvailability(50, p)
		assert.False(t, got.Available, "priority %s must not override the monthly cap", p)
		assert.Contains(t, got.Reason, "monthly")
	}

	// 日月同时超出时，原因需提及日预算
	got := l.CheckAvailability(900, types.PriorityHigh)
	assert.False(t, got.Available)
	assert.Contains(t, got.Reason, "daily budget")
	assert.Contains(t, got.Reason, "monthly")
}

func TestLedger_CheckAvailability_HighPriorityOverage(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())
	require.NoError(t, l.RecordUsage(0, 0, 90))

	// 日剩余 10，110% 容差上限 11
	assert.False(t, l.CheckAvailability(10.5, types.PriorityMedium).Available)
	assert.False(t, l.CheckAvailability(10.5, types.PriorityLow).Available)
	assert.True(t, l.CheckAvailability(10.5, types.PriorityHigh).Available)
	assert.False(t, l.CheckAvailability(11.5, types.PriorityHigh).Available)
}

func TestLedger_CheckAvailability_LowPriorityReserve(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())

	// 预留 20%: 低优先级只能动用 80
	lowDenied := l.CheckAvailability(85, types.PriorityLow)
	assert.False(t, lowDenied.Available)
	assert.Contains(t, lowDenied.Reason, "non-reserve")

	assert.True(t, l.CheckAvailability(79, types.PriorityLow).Available)
	assert.True(t, l.CheckAvailability(85, types.PriorityMedium).Available)
	assert.True(t, l.CheckAvailability(85, types.PriorityHigh).Available)
}

func TestLedger_Projected(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())
	fixClock(l, time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC))

	// 6 小时内 6 笔请求共 12 金额: 每小时 1 笔、每笔 2
	for i := 0; i < 6; i++ {
		require.NoError(t, l.RecordUsage(1000, 500, 2))
	}

	proj := l.Projected()
	// 剩余 18 小时 × 1 笔/时 × 2 = 36
	assert.InDelta(t, 36.0, proj.Daily, 1e-9)
	// 月初起算 222 小时，剩余 522 小时
	assert.InDelta(t, 2.0*(6.0/222.0)*522.0, proj.Monthly, 1e-9)
}

func TestLedger_Projected_NoRequests(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())

	proj := l.Projected()
	assert.Equal(t, 0.0, proj.Daily)
	assert.Equal(t, 0.0, proj.Monthly)
}

func TestLedger_PeriodRollover(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())
	cur := fixClock(l, time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC))

	require.NoError(t, l.RecordUsage(100, 100, 5))
	assert.Equal(t, int64(1), l.DailyUsage().RequestCount)

	// 跨过午夜: 日周期整体重建，月周期保留
	*cur = time.Date(2024, 5, 11, 1, 0, 0, 0, time.UTC)
	daily := l.DailyUsage()
	assert.Equal(t, int64(0), daily.RequestCount)
	assert.Equal(t, 0.0, daily.TotalCost)
	assert.Equal(t, time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC), daily.StartDate)
	assert.Equal(t, int64(1), l.MonthlyUsage().RequestCount)

	// 跨过月初: 月周期也重建
	*cur = time.Date(2024, 6, 1, 0, 30, 0, 0, time.UTC)
	monthly := l.MonthlyUsage()
	assert.Equal(t, int64(0), monthly.RequestCount)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), monthly.StartDate)
}

func TestLedger_Reset(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())
	require.NoError(t, l.RecordUsage(100, 100, 5))

	l.ResetDaily()
	assert.Equal(t, int64(0), l.DailyUsage().RequestCount)
	assert.Equal(t, int64(1), l.MonthlyUsage().RequestCount)

	l.ResetMonthly()
	assert.Equal(t, int64(0), l.MonthlyUsage().RequestCount)
}

func TestLedger_UpdateConfig(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())

	daily := 500.0
	require.NoError(t, l.UpdateConfig(ConfigPatch{DailyBudget: &daily}))
	assert.Equal(t, 500.0, l.Config().DailyBudget)
	assert.Equal(t, 2000.0, l.Config().MonthlyBudget)

	// 警告阈值不得越过严重阈值，失败时保持原配置
	badWarning := 0.99
	err := l.UpdateConfig(ConfigPatch{WarningThreshold: &badWarning})
	require.Error(t, err)
	assert.Equal(t, 0.80, l.Config().WarningThreshold)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"零日预算", func(c *Config) { c.DailyBudget = 0 }},
		{"负月预算", func(c *Config) { c.MonthlyBudget = -1 }},
		{"零单请求上限", func(c *Config) { c.MaxTokensPerRequest = 0 }},
		{"预留超过一半", func(c *Config) { c.ReservePercentage = 0.6 }},
		{"负预留", func(c *Config) { c.ReservePercentage = -0.1 }},
		{"阈值越界", func(c *Config) { c.CriticalThreshold = 1.5 }},
		{"警告不低于严重", func(c *Config) { c.WarningThreshold = 0.95 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

// 任意非负用量序列下，账本累计值与逐笔求和严格一致。
func TestLedger_AccumulationProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := Config{
			DailyBudget:         1e9,
			MonthlyBudget:       1e9,
			MaxTokensPerRequest: 1 << 40,
			ReservePercentage:   0.2,
			WarningThreshold:    0.80,
			CriticalThreshold:   0.95,
		}
		l, err := NewLedger(cfg, zap.NewNop())
		if err != nil {
			rt.Fatalf("new ledger: %v", err)
		}
		fixClock(l, time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))

		var wantInput, wantOutput, wantRequests int64
		var wantCost float64

		n := rapid.IntRange(1, 40).Draw(rt, "n")
		for i := 0; i < n; i++ {
			in := rapid.Int64Range(0, 100_000).Draw(rt, "input")
			out := rapid.Int64Range(0, 100_000).Draw(rt, "output")
			cost := float64(rapid.Int64Range(0, 10_000).Draw(rt, "cost_milli")) / 1000.0
			if err := l.RecordUsage(in, out, cost); err != nil {
				rt.Fatalf("record usage: %v", err)
			}
			wantInput += in
			wantOutput += out
			wantCost += cost
			wantRequests++
		}

		for _, stats := range []types.UsagePeriodStats{l.DailyUsage(), l.MonthlyUsage()} {
			if stats.TotalTokens.Input != wantInput || stats.TotalTokens.Output != wantOutput {
				rt.Fatalf("%s tokens = %+v, want input %d output %d",
					stats.Period, stats.TotalTokens, wantInput, wantOutput)
			}
			if stats.RequestCount != wantRequests {
				rt.Fatalf("%s requests = %d, want %d", stats.Period, stats.RequestCount, wantRequests)
			}
			diff := stats.TotalCost - wantCost
			if diff < -1e-6 || diff > 1e-6 {
				rt.Fatalf("%s cost = %f, want %f", stats.Period, stats.TotalCost, wantCost)
			}
		}
	})
}

func TestLedger_RejectionReasonMentionsBudget(t *testing.T) {
	l := newTestLedger(t, DefaultConfig())

	got := l.CheckAvailability(500, types.PriorityMedium)
	require.False(t, got.Available)
	assert.True(t, strings.Contains(got.Reason, "daily budget"), "reason = %q", got.Reason)
}
