package budget

import (
	"sync"

	"github.com/BaSui01/promptgate/types"
)

// =============================================================================
// 💰 成本模型
// =============================================================================

// CostConfig 计价配置。构造后不可变，只能通过 UpdateConfig 显式更新。
type CostConfig struct {
	// CostPerInputToken 每 1000 输入 Token 的价格
	CostPerInputToken float64 `json:"cost_per_input_token" yaml:"cost_per_input_token"`
	// CostPerOutputToken 每 1000 输出 Token 的价格
	CostPerOutputToken float64 `json:"cost_per_output_token" yaml:"cost_per_output_token"`
	// Currency 货币单位
	Currency string `json:"currency" yaml:"currency"`
}

// DefaultCostConfig 返回默认计价配置。
func DefaultCostConfig() CostConfig {
	return CostConfig{
		CostPerInputToken:  0.00003,
		CostPerOutputToken: 0.00006,
		Currency:           "USD",
	}
}

// Validate 校验计价配置。
func (c CostConfig) Validate() error {
	if c.CostPerInputToken < 0 {
		return types.NewError(types.ErrInvalidConfig, "cost_per_input_token must not be negative")
	}
	if c.CostPerOutputToken < 0 {
		return types.NewError(types.ErrInvalidConfig, "cost_per_output_token must not be negative")
	}
	if c.Currency == "" {
		return types.NewError(types.ErrInvalidConfig, "currency must not be empty")
	}
	return nil
}

// CostConfigPatch 计价配置的部分更新。nil 字段保持原值。
type CostConfigPatch struct {
	CostPerInputToken  *float64 `json:"cost_per_input_token,omitempty"`
	CostPerOutputToken *float64 `json:"cost_per_output_token,omitempty"`
	Currency           *string  `json:"currency,omitempty"`
}

// CostModel 将 Token 量映射为货币成本。纯计算，无副作用。
type CostModel struct {
	mu  sync.RWMutex
	cfg CostConfig
}

// NewCostModel 创建成本模型，配置不合法时返回错误。
func NewCostModel(cfg CostConfig) (*CostModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CostModel{cfg: cfg}, nil
}

// Cost 计算成本: (input/1000)·inputRate + (output/1000)·outputRate。
// 负数 Token 快速失败。
func (m *CostModel) Cost(inputTokens, outputTokens int64) (float64, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return 0, types.NewError(types.ErrInvalidRequest, "token counts must not be negative")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	inputCost := float64(inputTokens) / 1000 * m.cfg.CostPerInputToken
	outputCost := float64(outputTokens) / 1000 * m.cfg.CostPerOutputToken
	return inputCost + outputCost, nil
}

// Config 返回当前计价配置的副本。
func (m *CostModel) Config() CostConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// UpdateConfig 对部分更新做校验合并。校验失败时原配置保持不变。
func (m *CostModel) UpdateConfig(patch CostConfigPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg
	if patch.CostPerInputToken != nil {
		next.CostPerInputToken = *patch.CostPerInputToken
	}
	if patch.CostPerOutputToken != nil {
		next.CostPerOutputToken = *patch.CostPerOutputToken
	}
	if patch.Currency != nil {
		next.Currency = *patch.Currency
	}

	if err := next.Validate(); err != nil {
		return err
	}

	m.cfg = next
	return nil
}
