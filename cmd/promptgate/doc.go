// Copyright (c) PromptGate Authors.
// Licensed under the MIT License.

/*
Package main 提供 PromptGate 服务端程序入口。

# 概述

cmd/promptgate 是预算治理与提示词优化引擎的可执行入口，提供 HTTP API 服务、
数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集、OpenTelemetry 链路追踪以及
WebSocket 实时告警流。

# 核心类型

  - Server                — 主服务器，装配治理引擎、路由与优雅关闭
  - Middleware            — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter        — 包装 http.ResponseWriter 以捕获状态码
  - metricsResponseWriter — 指标中间件专用的状态码捕获包装

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing（可选）、CORS、RateLimiter（基于 IP）
    或 TenantRateLimiter（基于 JWT 租户）、APIKeyAuth / JWTAuth
  - 鉴权策略：API Key 优先，其次 JWT（HS256/RS256），均未配置时关闭鉴权
  - 指标端点：主端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭引擎 → 释放存储与缓存 → 冲刷遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
