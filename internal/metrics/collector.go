// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 审批指标
	approvalsTotal *prometheus.CounterVec

	// 成本与用量指标
	costTotal   *prometheus.CounterVec
	tokensTotal *prometheus.CounterVec
	usageRatio  *prometheus.GaugeVec

	// 告警指标
	alertsTotal *prometheus.CounterVec

	// 优化指标
	optimizationsTotal *prometheus.CounterVec
	tokenReduction     prometheus.Histogram

	// 在途预留指标
	allocationsActive prometheus.Gauge
	allocationsSwept  prometheus.Counter

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 审批指标
	c.approvalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Total number of budget approval decisions",
		},
		[]string{"decision", "priority"},
	)

	// 成本与用量指标
	c.costTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_total",
			Help:      "Total recorded cost in configured currency",
		},
		[]string{"period"},
	)

	c.tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total recorded tokens",
		},
		[]string{"period", "type"}, // type: input, output
	)

	c.usageRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_usage_ratio",
			Help:      "Current budget usage ratio per period",
		},
		[]string{"period"},
	)

	// 告警指标
	c.alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total number of budget alerts raised",
		},
		[]string{"type", "period"},
	)

	// 优化指标
	c.optimizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimizations_total",
			Help:      "Total number of prompt optimizations",
		},
		[]string{"strategy", "outcome"},
	)

	c.tokenReduction = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_reduction",
			Help:      "Tokens saved per successful optimization",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// 在途预留指标
	c.allocationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "allocations_active",
			Help:      "Number of live budget allocations",
		},
	)

	c.allocationsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_swept_total",
			Help:      "Total number of expired allocations reclaimed by the sweeper",
		},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 💰 预算指标记录
// =============================================================================

// RecordApproval 记录一次审批决策
func (c *Collector) RecordApproval(decision, priority string) {
	c.approvalsTotal.WithLabelValues(decision, priority).Inc()
}

// RecordUsage 记录一次实际用量结算
func (c *Collector) RecordUsage(period string, inputTokens, outputTokens int64, cost float64) {
	c.tokensTotal.WithLabelValues(period, "input").Add(float64(inputTokens))
	c.tokensTotal.WithLabelValues(period, "output").Add(float64(outputTokens))
	c.costTotal.WithLabelValues(period).Add(cost)
}

// SetUsageRatio 更新某周期的预算使用率
func (c *Collector) SetUsageRatio(period string, ratio float64) {
	c.usageRatio.WithLabelValues(period).Set(ratio)
}

// RecordAlert 记录一条预算告警
func (c *Collector) RecordAlert(alertType, period string) {
	c.alertsTotal.WithLabelValues(alertType, period).Inc()
}

// SetActiveAllocations 更新在途预留数量
func (c *Collector) SetActiveAllocations(n int) {
	c.allocationsActive.Set(float64(n))
}

// RecordAllocationsSwept 记录被清扫的过期预留数量
func (c *Collector) RecordAllocationsSwept(n int) {
	if n > 0 {
		c.allocationsSwept.Add(float64(n))
	}
}

// =============================================================================
// 🎯 优化指标记录
// =============================================================================

// RecordOptimization 记录一次优化执行。tokensSaved 仅在为正时计入直方图。
func (c *Collector) RecordOptimization(strategy, outcome string, tokensSaved int64) {
	c.optimizationsTotal.WithLabelValues(strategy, outcome).Inc()
	if tokensSaved > 0 {
		c.tokenReduction.Observe(float64(tokensSaved))
	}
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🌐 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
