package optimizer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// 🗜️ 规则压缩引擎
// =============================================================================

// RewriteRule 单条命名重写规则。
type RewriteRule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// DefaultRules 返回内置规则集，按声明顺序依次应用。
func DefaultRules() []RewriteRule {
	return []RewriteRule{
		{
			Name:        "verbose-request",
			Pattern:     regexp.MustCompile(`(?i)\b(i would like you to|i want you to|could you please|can you please|would you mind)\s+`),
			Replacement: "",
		},
		{
			Name:        "redundant-preamble",
			Pattern:     regexp.MustCompile(`(?i)\b(please note that|it should be noted that|it is important to note that)\s+`),
			Replacement: "",
		},
		{
			Name:        "redundant-reference",
			Pattern:     regexp.MustCompile(`(?i)\b(as mentioned above|as previously mentioned|as stated earlier)[,，]?\s*`),
			Replacement: "",
		},
		{
			Name:        "redundant-politeness",
			Pattern:     regexp.MustCompile(`(?i)\b(please|kindly|thank you in advance|thanks in advance)\b[,，]?\s*`),
			Replacement: "",
		},
		{
			Name:        "filler-words",
			Pattern:     regexp.MustCompile(`(?i)\b(really|very|quite|actually|basically|essentially|simply|definitely|certainly)\s+`),
			Replacement: "",
		},
		{
			Name:        "wordy-infinitive",
			Pattern:     regexp.MustCompile(`(?i)\bin order to\b`),
			Replacement: "to",
		},
		{
			Name:        "redundant-conjunction",
			Pattern:     regexp.MustCompile(`(?i)\bas well as\b`),
			Replacement: "and",
		},
	}
}

// whitespaceRun 匹配连续空白，统一折叠为单个空格。
var whitespaceRun = regexp.MustCompile(`\s+`)

// CompressionResult 一次压缩的产物与度量。
type CompressionResult struct {
	Output           string
	Improved         bool
	ReductionPercent float64
	RulesApplied     int
	Summary          string
}

// CompressionEngine 按序应用命名重写规则后折叠空白。
// 规则集在构造时固定，Compress 可并发调用。
type CompressionEngine struct {
	rules  []RewriteRule
	logger *zap.Logger

	mu    sync.Mutex
	stats CompressionStats
}

// CompressionStats 压缩引擎累计统计。
type CompressionStats struct {
	TotalRuns      int64   `json:"total_runs"`
	ImprovedRuns   int64   `json:"improved_runs"`
	CharsRemoved   int64   `json:"chars_removed"`
	AvgReductionPc float64 `json:"avg_reduction_pc"`
}

// NewCompressionEngine 创建压缩引擎。rules 为空时使用内置规则集。
func NewCompressionEngine(rules []RewriteRule, logger *zap.Logger) *CompressionEngine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompressionEngine{
		rules:  rules,
		logger: logger.With(zap.String("component", "compression_engine")),
	}
}

// Compress 应用全部规则并报告压缩度量。
// 对已压缩文本再次调用不会增加长度。
func (e *CompressionEngine) Compress(text string) CompressionResult {
	original := text
	applied := 0

	for _, rule := range e.rules {
		next := rule.Pattern.ReplaceAllString(text, rule.Replacement)
		if next != text {
			applied++
			text = next
		}
	}

	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))

	result := CompressionResult{
		Output:       text,
		Improved:     len(text) < len(original),
		RulesApplied: applied,
	}
	if len(original) > 0 {
		result.ReductionPercent = (1 - float64(len(text))/float64(len(original))) * 100
	}
	result.Summary = fmt.Sprintf("compressed %.1f%% via %d rules", result.ReductionPercent, applied)

	e.updateStats(len(original), len(text), result)

	e.logger.Debug("compression applied",
		zap.Int("original_chars", len(original)),
		zap.Int("final_chars", len(text)),
		zap.Int("rules_applied", applied),
		zap.Float64("reduction_pc", result.ReductionPercent),
	)
	return result
}

func (e *CompressionEngine) updateStats(originalLen, finalLen int, result CompressionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TotalRuns++
	if result.Improved {
		e.stats.ImprovedRuns++
	}
	e.stats.CharsRemoved += int64(originalLen - finalLen)
	e.stats.AvgReductionPc = (e.stats.AvgReductionPc*float64(e.stats.TotalRuns-1) + result.ReductionPercent) / float64(e.stats.TotalRuns)
}

// Stats 返回累计统计快照。
func (e *CompressionEngine) Stats() CompressionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Rules 返回规则名列表，顺序与应用顺序一致。
func (e *CompressionEngine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}
