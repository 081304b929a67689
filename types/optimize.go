package types

// =============================================================================
// 🧰 优化域类型
// =============================================================================

// Strategy 提示词优化策略。各策略互斥，单次优化只选其一。
type Strategy string

const (
	StrategyCompression  Strategy = "compression"
	StrategyTemplateBase Strategy = "template-based"
	StrategyContextAware Strategy = "context-aware"
	StrategyAdaptive     Strategy = "adaptive"
	StrategyMLDriven     Strategy = "ml-driven"
)

// Valid 校验策略取值。
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCompression, StrategyTemplateBase, StrategyContextAware,
		StrategyAdaptive, StrategyMLDriven:
		return true
	}
	return false
}

// TaskType 任务类别。
type TaskType string

const (
	TaskGeneration    TaskType = "generation"
	TaskPlanning      TaskType = "planning"
	TaskAnalysis      TaskType = "analysis"
	TaskRefactoring   TaskType = "refactoring"
	TaskDebugging     TaskType = "debugging"
	TaskDocumentation TaskType = "documentation"
)

// UserLevel 用户经验级别。
type UserLevel string

const (
	UserLevelBeginner     UserLevel = "beginner"
	UserLevelIntermediate UserLevel = "intermediate"
	UserLevelAdvanced     UserLevel = "advanced"
)

// OutputFormat 期望的输出格式。
type OutputFormat string

const (
	FormatText     OutputFormat = "text"
	FormatJSON     OutputFormat = "json"
	FormatMarkdown OutputFormat = "markdown"
	FormatCode     OutputFormat = "code"
)

// TimeConstraint 时间约束。immediate 触发压缩优先。
type TimeConstraint string

const (
	TimeImmediate TimeConstraint = "immediate"
	TimeStandard  TimeConstraint = "standard"
	TimeRelaxed   TimeConstraint = "relaxed"
)

// AdaptationLevel 模板的适配级别。static 模板在 immediate 约束下获得加分。
type AdaptationLevel string

const (
	AdaptationStatic       AdaptationLevel = "static"
	AdaptationDynamic      AdaptationLevel = "dynamic"
	AdaptationPersonalized AdaptationLevel = "personalized"
)

// UserProfile 显式用户画像。存在时参与模板分段加分。
type UserProfile struct {
	Segment         string       `json:"segment"`
	PreferredFormat OutputFormat `json:"preferred_format,omitempty"`
	ExpertiseAreas  []string     `json:"expertise_areas,omitempty"`
}

// OptimizationRequest 单次优化请求。
type OptimizationRequest struct {
	ToolName       string         `json:"tool_name"`
	OriginalPrompt string         `json:"original_prompt"`
	TaskType       TaskType       `json:"task_type"`
	UserLevel      UserLevel      `json:"user_level,omitempty"`
	OutputFormat   OutputFormat   `json:"output_format,omitempty"`
	TimeConstraint TimeConstraint `json:"time_constraint,omitempty"`
	Constraints    []string       `json:"constraints,omitempty"`

	// TargetReduction 期望压缩比例（0 表示未设置）。
	TargetReduction float64 `json:"target_reduction,omitempty"`
	// MaxTokens 优化结果的 Token 上限（0 表示未设置）。
	MaxTokens int64 `json:"max_tokens,omitempty"`
	// QualityThreshold 质量下限，与质量分同为 0-100 量纲，低于则返回失败与回退建议（0 表示未设置）。
	QualityThreshold float64 `json:"quality_threshold,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	// Strategy 非空时跳过规则选择，直接使用指定策略。
	Strategy    Strategy     `json:"strategy,omitempty"`
	UserProfile *UserProfile `json:"user_profile,omitempty"`
}

// FallbackSuggestion 质量不达标时的回退建议，携带未优化文本与其更高的质量分。
type FallbackSuggestion struct {
	Prompt       string  `json:"prompt"`
	QualityScore float64 `json:"quality_score"`
	Note         string  `json:"note,omitempty"`
}

// OptimizationResult 单次优化结果。失败以 Success=false + Reason 表达。
type OptimizationResult struct {
	Success         bool                `json:"success"`
	OptimizedPrompt string              `json:"optimized_prompt"`
	TokenReduction  int64               `json:"token_reduction"`
	EstimatedTokens int64               `json:"estimated_tokens"`
	Strategy        Strategy            `json:"strategy"`
	QualityScore    float64             `json:"quality_score"`
	Reason          string              `json:"reason,omitempty"`
	Fallback        *FallbackSuggestion `json:"fallback,omitempty"`
}

// TemplateMetadata 模板目录条目。仅通过目录的 MarkUsed 修改。
type TemplateMetadata struct {
	ID              string          `json:"id"`
	ToolName        string          `json:"tool_name"`
	TaskType        TaskType        `json:"task_type"`
	Body            string          `json:"body"`
	QualityScore    float64         `json:"quality_score"`
	UsageCount      int64           `json:"usage_count"`
	UserSegments    []string        `json:"user_segments,omitempty"`
	AdaptationLevel AdaptationLevel `json:"adaptation_level"`
}
