package optimizer

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/BaSui01/promptgate/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📋 模板目录
// =============================================================================

// TemplateCatalog 按 {toolName, taskType} 组织的提示词模板目录。
// 模板元数据只通过 MarkUsed 变更，评分在候选快照上进行。
type TemplateCatalog struct {
	mu        sync.RWMutex
	templates map[string][]*types.TemplateMetadata
	logger    *zap.Logger
}

const templateScoreCap = 100.0

// 模板上下文加分项。
const (
	userLevelBonus      = 10.0
	timeConstraintBonus = 5.0
	userSegmentBonus    = 15.0
)

// NewTemplateCatalog 创建空目录。
func NewTemplateCatalog(logger *zap.Logger) *TemplateCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateCatalog{
		templates: make(map[string][]*types.TemplateMetadata),
		logger:    logger.With(zap.String("component", "template_catalog")),
	}
}

// NewDefaultTemplateCatalog 创建带内置模板的目录。
func NewDefaultTemplateCatalog(logger *zap.Logger) *TemplateCatalog {
	c := NewTemplateCatalog(logger)
	for _, tmpl := range builtinTemplates() {
		// 内置模板经过校验，注册不会失败
		_ = c.Register(tmpl)
	}
	return c
}

// Register 注册模板。模板体必须是合法的 text/template。
func (c *TemplateCatalog) Register(tmpl types.TemplateMetadata) error {
	if tmpl.ID == "" || tmpl.ToolName == "" {
		return types.NewError(types.ErrInvalidConfig, "template id and tool_name are required")
	}
	if _, err := template.New(tmpl.ID).Parse(tmpl.Body); err != nil {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("template %s body does not parse: %v", tmpl.ID, err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	copied := tmpl
	c.templates[tmpl.ToolName] = append(c.templates[tmpl.ToolName], &copied)
	return nil
}

// HasTemplate 报告指定工具与任务类型是否存在候选模板。
func (c *TemplateCatalog) HasTemplate(toolName string, taskType types.TaskType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, tmpl := range c.templates[toolName] {
		if tmpl.TaskType == taskType {
			return true
		}
	}
	return false
}

// Select 在匹配 {toolName, taskType} 的候选中选出得分最高的模板。
// 无候选时返回 NO_TEMPLATE_FOUND，由调用方降级到其他策略。
//
// 得分 = 模板质量分 + 用户级别加分 + 即时约束下静态模板加分
// + 用户画像分层加分，上限 100。
func (c *TemplateCatalog) Select(req types.OptimizationRequest) (types.TemplateMetadata, float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var (
		best      *types.TemplateMetadata
		bestScore float64
	)
	for _, tmpl := range c.templates[req.ToolName] {
		if tmpl.TaskType != req.TaskType {
			continue
		}
		score := c.score(tmpl, req)
		if best == nil || score > bestScore {
			best = tmpl
			bestScore = score
		}
	}

	if best == nil {
		return types.TemplateMetadata{}, 0, types.NewError(types.ErrNoTemplateFound,
			fmt.Sprintf("no template cataloged for tool %q task %q", req.ToolName, req.TaskType))
	}
	return *best, bestScore, nil
}

func (c *TemplateCatalog) score(tmpl *types.TemplateMetadata, req types.OptimizationRequest) float64 {
	score := tmpl.QualityScore

	if req.UserLevel != "" {
		score += userLevelBonus
	}
	if tmpl.AdaptationLevel == types.AdaptationStatic && req.TimeConstraint == types.TimeImmediate {
		score += timeConstraintBonus
	}
	if req.UserProfile != nil && segmentMatches(tmpl.UserSegments, req.UserProfile.Segment) {
		score += userSegmentBonus
	}

	if score > templateScoreCap {
		score = templateScoreCap
	}
	return score
}

func segmentMatches(segments []string, segment string) bool {
	if segment == "" {
		return false
	}
	for _, s := range segments {
		if strings.EqualFold(s, segment) {
			return true
		}
	}
	return false
}

// Render 用请求内容渲染模板体。
func (c *TemplateCatalog) Render(tmpl types.TemplateMetadata, req types.OptimizationRequest) (string, error) {
	parsed, err := template.New(tmpl.ID).Parse(tmpl.Body)
	if err != nil {
		return "", types.NewError(types.ErrOptimizationFailed,
			fmt.Sprintf("template %s: %v", tmpl.ID, err)).WithCause(err)
	}

	var sb strings.Builder
	data := map[string]any{
		"Prompt":      req.OriginalPrompt,
		"ToolName":    req.ToolName,
		"TaskType":    string(req.TaskType),
		"Constraints": req.Constraints,
		"Format":      string(req.OutputFormat),
	}
	if err := parsed.Execute(&sb, data); err != nil {
		return "", types.NewError(types.ErrOptimizationFailed,
			fmt.Sprintf("render template %s: %v", tmpl.ID, err)).WithCause(err)
	}
	return sb.String(), nil
}

// MarkUsed 递增模板使用计数。未知 ID 仅记录警告。
func (c *TemplateCatalog) MarkUsed(templateID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, list := range c.templates {
		for _, tmpl := range list {
			if tmpl.ID == templateID {
				tmpl.UsageCount++
				return
			}
		}
	}
	c.logger.Warn("usage recorded for unknown template", zap.String("template_id", templateID))
}

// Templates 返回目录内容快照。
func (c *TemplateCatalog) Templates() []types.TemplateMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []types.TemplateMetadata
	for _, list := range c.templates {
		for _, tmpl := range list {
			out = append(out, *tmpl)
		}
	}
	return out
}

// builtinTemplates 内置模板集，覆盖常见工具与任务类型组合。
func builtinTemplates() []types.TemplateMetadata {
	return []types.TemplateMetadata{
		{
			ID:              "code-review-analysis-v1",
			ToolName:        "code-review",
			TaskType:        types.TaskAnalysis,
			QualityScore:    82,
			UserSegments:    []string{"engineering"},
			AdaptationLevel: types.AdaptationStatic,
			Body:            "Review the following change. Focus on correctness, concurrency and error handling.\n\n{{.Prompt}}",
		},
		{
			ID:              "code-review-refactor-v1",
			ToolName:        "code-review",
			TaskType:        types.TaskRefactoring,
			QualityScore:    78,
			UserSegments:    []string{"engineering"},
			AdaptationLevel: types.AdaptationDynamic,
			Body:            "Refactor target:\n{{.Prompt}}\n\nKeep behavior identical. List each change with a one-line rationale.",
		},
		{
			ID:              "doc-writer-documentation-v1",
			ToolName:        "doc-writer",
			TaskType:        types.TaskDocumentation,
			QualityScore:    80,
			UserSegments:    []string{"engineering", "support"},
			AdaptationLevel: types.AdaptationStatic,
			Body:            "Write {{.Format}} documentation for:\n{{.Prompt}}",
		},
		{
			ID:              "generator-generation-v1",
			ToolName:        "generator",
			TaskType:        types.TaskGeneration,
			QualityScore:    75,
			UserSegments:    []string{"product"},
			AdaptationLevel: types.AdaptationDynamic,
			Body:            "Generate output for: {{.Prompt}}{{if .Constraints}}\nConstraints:{{range .Constraints}}\n- {{.}}{{end}}{{end}}",
		},
		{
			ID:              "debugger-debugging-v1",
			ToolName:        "debugger",
			TaskType:        types.TaskDebugging,
			QualityScore:    84,
			UserSegments:    []string{"engineering"},
			AdaptationLevel: types.AdaptationStatic,
			Body:            "Diagnose this failure. State the root cause before any fix.\n\n{{.Prompt}}",
		},
	}
}
