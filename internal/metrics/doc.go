// 版权所有 2024 PromptGate Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖预算审批、
成本用量、告警、提示词优化、缓存、HTTP 与数据库六大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
生产部署统一使用 promptgate 命名空间。

# 指标清单

  - approvals_total{decision, priority}: 审批决策计数
  - cost_total{period} / tokens_total{period, type}: 结算成本与 Token 累计
  - budget_usage_ratio{period}: 周期预算使用率
  - alerts_total{type, period}: 告警触发计数
  - optimizations_total{strategy, outcome} / token_reduction: 优化执行与节省分布
  - allocations_active / allocations_swept_total: 在途预留水位与清扫量
  - cache_hits_total / cache_misses_total{cache_type}: 结果缓存命中率
  - http_requests_total / http_request_duration_seconds: API 流量
  - db_connections_open / db_connections_idle / db_query_duration_seconds: 连接池状态

# 使用方法

	collector := metrics.NewCollector("promptgate", logger)
	collector.RecordApproval("approved", "high")
	collector.RecordUsage("daily", 500, 300, 0.000033)
*/
package metrics
