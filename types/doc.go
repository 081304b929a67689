// Copyright (c) PromptGate Authors.
// Licensed under the MIT License.

/*
Package types 提供 PromptGate 引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，不依赖任何内部包，为 budget、optimizer、
gateway、api 等上层模块提供统一的类型契约。所有跨包共享的结构体、
枚举和错误码均定义于此，以避免循环依赖。

# 核心类型

  - BudgetRequest / BudgetApproval — 预算审批的请求与结果
  - UsagePeriodStats              — 单个预算周期（日 / 月）的用量统计
  - BudgetAllocation              — 审批通过后的在途预留
  - BudgetAlert / AlertType       — 阈值告警（warning / critical）
  - OptimizationRequest / OptimizationResult — 提示词优化的输入与输出
  - TemplateMetadata              — 模板目录条目
  - Error / ErrorCode             — 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - TokenUsage                    — Token 用量与成本汇总

# 主要能力

  - Context 传播：WithRequestID / WithTenantID / WithUserID
  - 错误工具链：NewError / WithCause / IsRetryable / GetErrorCode
  - 枚举校验：Priority.Valid、Strategy.Valid 等
*/
package types
