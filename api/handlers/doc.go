// Copyright (c) PromptGate Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 PromptGate HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 PromptGate 所有 HTTP 端点的请求处理逻辑，
包括预算审批、用量结算与查询、告警列表与 WebSocket 推送、
提示词优化、运行时配置更新以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - BudgetHandler    — 预算审批、用量结算、周期用量/剩余/外推查询
  - AlertsHandler    — 告警历史列表与 WebSocket 实时推送
  - OptimizeHandler  — 提示词优化与优化器统计
  - ConfigHandler    — 预算/计价配置的运行时局部更新
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp + request_id）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Database、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - WebSocket 告警推送：AlertsHandler.HandleStream 按连接维护订阅
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
