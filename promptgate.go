// Package promptgate provides a top-level convenience entry point for creating
// a budget governor with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/promptgate"
//
//	g, err := promptgate.New(promptgate.WithDailyBudget(50))
//	g, err := promptgate.New(promptgate.WithBudgets(50, 1000), promptgate.WithTiktoken("gpt-4"))
//	g, err := promptgate.New(promptgate.WithConfig(customCfg), promptgate.WithLogger(logger))
//
// This is a thin wrapper around [quick.New]; both produce identical results.
// Use this package when you prefer the shorter import path.
package promptgate

import (
	"github.com/BaSui01/promptgate/gateway"
	"github.com/BaSui01/promptgate/quick"
)

// Option configures the governor created by [New].
type Option = quick.Option

// New creates a [gateway.Governor] with minimal configuration.
// All options are optional; the defaults match gateway.DefaultConfig.
func New(opts ...Option) (*gateway.Governor, error) {
	return quick.New(opts...)
}

// Re-export configuration shortcuts so callers never need to import quick/.

// WithConfig replaces the entire configuration.
var WithConfig = quick.WithConfig

// WithDailyBudget sets the daily spending limit.
var WithDailyBudget = quick.WithDailyBudget

// WithMonthlyBudget sets the monthly spending limit.
var WithMonthlyBudget = quick.WithMonthlyBudget

// WithBudgets sets both the daily and monthly spending limits.
var WithBudgets = quick.WithBudgets

// WithMaxTokensPerRequest caps the token total a single request may claim.
var WithMaxTokensPerRequest = quick.WithMaxTokensPerRequest

// WithTokenRates sets the per-1000-token prices for input and output.
var WithTokenRates = quick.WithTokenRates

// WithQualityThreshold sets the default optimization quality floor.
var WithQualityThreshold = quick.WithQualityThreshold

// WithTiktoken switches token counting to a tiktoken encoding.
var WithTiktoken = quick.WithTiktoken

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger

// WithGatewayOptions forwards extra options to gateway.New.
var WithGatewayOptions = quick.WithGatewayOptions
