// =============================================================================
// Package quick — One-Line Governor Construction
// =============================================================================
// Provides a convenience entry point for creating a budget governor with
// minimal boilerplate. Delegates to gateway.New internally.
//
// Usage:
//
//	import "github.com/BaSui01/promptgate/quick"
//
//	g, err := quick.New(quick.WithDailyBudget(50))
//	g, err := quick.New(quick.WithBudgets(50, 1000), quick.WithTiktoken("gpt-4"))
//	g, err := quick.New(quick.WithConfig(customCfg), quick.WithLogger(logger))
//
// =============================================================================
package quick

import (
	"go.uber.org/zap"

	"github.com/BaSui01/promptgate/gateway"
	"github.com/BaSui01/promptgate/tokenizer"
)

// Option configures the governor created by New.
type Option func(*options)

type options struct {
	cfg    gateway.Config
	logger *zap.Logger
	gwOpts []gateway.Option

	// Tokenizer shortcut fields — used when counterModel is non-empty.
	counterModel string
}

// WithConfig replaces the entire configuration. Apply it before the
// field-level shortcuts so they can still override individual values.
func WithConfig(cfg gateway.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithDailyBudget sets the daily spending limit in the configured currency.
func WithDailyBudget(amount float64) Option {
	return func(o *options) { o.cfg.Budget.DailyBudget = amount }
}

// WithMonthlyBudget sets the monthly spending limit in the configured currency.
func WithMonthlyBudget(amount float64) Option {
	return func(o *options) { o.cfg.Budget.MonthlyBudget = amount }
}

// WithBudgets sets both the daily and monthly spending limits.
func WithBudgets(daily, monthly float64) Option {
	return func(o *options) {
		o.cfg.Budget.DailyBudget = daily
		o.cfg.Budget.MonthlyBudget = monthly
	}
}

// WithMaxTokensPerRequest caps the token total a single request may claim.
func WithMaxTokensPerRequest(limit int64) Option {
	return func(o *options) { o.cfg.Budget.MaxTokensPerRequest = limit }
}

// WithTokenRates sets the per-1000-token prices for input and output.
func WithTokenRates(input, output float64) Option {
	return func(o *options) {
		o.cfg.Cost.CostPerInputToken = input
		o.cfg.Cost.CostPerOutputToken = output
	}
}

// WithQualityThreshold sets the default optimization quality floor (0-100).
func WithQualityThreshold(score float64) Option {
	return func(o *options) { o.cfg.Optimizer.DefaultQualityThreshold = score }
}

// WithTiktoken switches token counting from the heuristic to a tiktoken
// encoding resolved from the given model name (e.g. "gpt-4").
func WithTiktoken(model string) Option {
	return func(o *options) { o.counterModel = model }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithGatewayOptions forwards extra options (store, metrics, cache) to
// gateway.New for callers that outgrow the shortcuts.
func WithGatewayOptions(opts ...gateway.Option) Option {
	return func(o *options) { o.gwOpts = append(o.gwOpts, opts...) }
}

// New creates a Governor with minimal configuration.
func New(opts ...Option) (*gateway.Governor, error) {
	o := &options{
		cfg: gateway.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	gwOpts := o.gwOpts
	if o.counterModel != "" {
		gwOpts = append(gwOpts, gateway.WithTokenCounter(tokenizer.NewTiktokenCounter(o.counterModel)))
	}

	return gateway.New(o.cfg, o.logger, gwOpts...)
}
