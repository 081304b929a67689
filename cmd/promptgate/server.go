package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/promptgate/api/handlers"
	"github.com/BaSui01/promptgate/budget"
	"github.com/BaSui01/promptgate/config"
	"github.com/BaSui01/promptgate/gateway"
	"github.com/BaSui01/promptgate/internal/cache"
	"github.com/BaSui01/promptgate/internal/database"
	"github.com/BaSui01/promptgate/internal/metrics"
	"github.com/BaSui01/promptgate/internal/server"
	"github.com/BaSui01/promptgate/internal/telemetry"
	"github.com/BaSui01/promptgate/optimizer"
	"github.com/BaSui01/promptgate/store"
	"github.com/BaSui01/promptgate/tokenizer"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 PromptGate 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager *server.Manager

	// 治理引擎
	governor *gateway.Governor

	// Handlers
	healthHandler   *handlers.HealthHandler
	budgetHandler   *handlers.BudgetHandler
	alertsHandler   *handlers.AlertsHandler
	optimizeHandler *handlers.OptimizeHandler
	configHandler   *handlers.ConfigHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 可选依赖，未配置时为 nil
	db            *gorm.DB
	poolManager   *database.PoolManager
	resultCache   *cache.ResultCache
	otelProviders *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例。
// otelProviders 与 db 均可为 nil，对应能力自动降级。
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers, db *gorm.DB) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
		db:            db,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("promptgate", s.logger)

	// 2. 装配治理引擎
	if err := s.initGovernor(); err != nil {
		return fmt.Errorf("failed to init governor: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("addr", s.cfg.Server.Addr),
		zap.Bool("store_enabled", s.poolManager != nil),
		zap.Bool("cache_enabled", s.resultCache != nil),
		zap.Bool("telemetry_enabled", s.otelProviders != nil),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initGovernor 装配预算治理与优化引擎及其旁路依赖
func (s *Server) initGovernor() error {
	gwCfg := gateway.Config{
		Budget:            budgetConfigFrom(s.cfg.Budget),
		Cost:              costConfigFrom(s.cfg.Cost),
		Optimizer:         optimizerConfigFrom(s.cfg.Optimizer),
		AllocationTTL:     s.cfg.Budget.AllocationTTL,
		SweepInterval:     s.cfg.Budget.SweepInterval,
		AlertHistoryLimit: s.cfg.Budget.AlertHistoryLimit,
	}

	opts := []gateway.Option{
		gateway.WithMetrics(s.metricsCollector),
	}

	// 持久化存储（可选）
	if s.db != nil {
		poolCfg := database.DefaultPoolConfig()
		poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
		poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
		poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime

		pm, err := database.NewPoolManager(s.db, poolCfg, s.logger,
			database.WithCollector(s.metricsCollector))
		if err != nil {
			s.logger.Warn("Failed to init database pool, persistence disabled", zap.Error(err))
		} else {
			s.poolManager = pm
			opts = append(opts, gateway.WithStore(store.NewGormStore(s.db, s.logger)))
		}
	}

	// 优化结果缓存（可选）
	if s.cfg.Optimizer.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = s.cfg.Redis.Addr
		cacheCfg.Password = s.cfg.Redis.Password
		cacheCfg.DB = s.cfg.Redis.DB
		cacheCfg.PoolSize = s.cfg.Redis.PoolSize
		cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns
		cacheCfg.TTL = s.cfg.Optimizer.CacheTTL

		rc, err := cache.NewResultCache(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn("Failed to connect result cache, running without it", zap.Error(err))
		} else {
			s.resultCache = rc
			opts = append(opts, gateway.WithResultCache(rc))
		}
	}

	// Token 计数器。tiktoken 编码惰性加载，加载失败时计数自动退回启发式
	if s.cfg.Optimizer.TokenCounter == "tiktoken" {
		opts = append(opts,
			gateway.WithTokenCounter(tokenizer.NewTiktokenCounter(s.cfg.Optimizer.CounterModel)))
	}

	gov, err := gateway.New(gwCfg, s.logger, opts...)
	if err != nil {
		return err
	}
	s.governor = gov

	s.logger.Info("Governor initialized",
		zap.Float64("daily_budget", gwCfg.Budget.DailyBudget),
		zap.Float64("monthly_budget", gwCfg.Budget.MonthlyBudget),
		zap.String("token_counter", s.cfg.Optimizer.TokenCounter),
	)
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.poolManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.poolManager.Ping))
	}
	if s.resultCache != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.resultCache.Ping))
	}

	s.budgetHandler = handlers.NewBudgetHandler(s.governor, s.logger)
	s.alertsHandler = handlers.NewAlertsHandler(s.governor, s.logger)
	s.optimizeHandler = handlers.NewOptimizeHandler(s.governor, s.logger)
	s.configHandler = handlers.NewConfigHandler(s.governor, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查与指标端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("/metrics", promhttp.Handler())

	// ========================================
	// 预算 API
	// ========================================
	mux.HandleFunc("/v1/budget/approval", s.budgetHandler.HandleApproval)
	mux.HandleFunc("/v1/budget/usage", s.budgetHandler.HandleUsageReport)
	mux.HandleFunc("/v1/budget/usage/daily", s.budgetHandler.HandleDailyUsage)
	mux.HandleFunc("/v1/budget/usage/monthly", s.budgetHandler.HandleMonthlyUsage)
	mux.HandleFunc("/v1/budget/remaining", s.budgetHandler.HandleRemaining)
	mux.HandleFunc("/v1/budget/projected", s.budgetHandler.HandleProjected)

	// ========================================
	// 告警 API（含 WebSocket 实时流）
	// ========================================
	mux.HandleFunc("/v1/alerts", s.alertsHandler.HandleList)
	mux.HandleFunc("/v1/alerts/stream", s.alertsHandler.HandleStream)

	// ========================================
	// 优化 API
	// ========================================
	mux.HandleFunc("/v1/optimize", s.optimizeHandler.HandleOptimize)
	mux.HandleFunc("/v1/optimize/stats", s.optimizeHandler.HandleStats)

	// ========================================
	// 运行时配置 API
	// ========================================
	mux.HandleFunc("/v1/config/budget", s.configHandler.HandleBudgetConfig)
	mux.HandleFunc("/v1/config/cost", s.configHandler.HandleCostConfig)

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	jwtEnabled := s.cfg.Auth.JWTSecret != "" || s.cfg.Auth.JWTPublicKey != ""

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Telemetry.Enabled {
		httpMetrics, err := telemetry.NewHTTPMetrics()
		if err != nil {
			s.logger.Warn("OTel request instruments unavailable, tracing spans only", zap.Error(err))
		}
		middlewares = append(middlewares, OTelTracing(httpMetrics))
	}
	middlewares = append(middlewares, CORS(s.cfg.Server.CORSAllowedOrigins))

	// JWT 鉴权携带租户身份，限流按租户聚合；否则按来源 IP
	if jwtEnabled && s.cfg.Auth.APIKey == "" {
		middlewares = append(middlewares,
			TenantRateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	} else {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}

	// API Key 优先于 JWT，两者均未配置时关闭鉴权
	switch {
	case s.cfg.Auth.APIKey != "":
		middlewares = append(middlewares,
			APIKeyAuth(s.cfg.Auth.APIKey, skipAuthPaths, true, s.logger))
	case jwtEnabled:
		middlewares = append(middlewares,
			JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger))
	default:
		s.logger.Warn("Authentication disabled, all endpoints are public")
	}

	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            s.cfg.Server.Addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  s.cfg.Server.MaxHeaderBytes,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if s.cfg.Server.CertFile != "" && s.cfg.Server.KeyFile != "" {
		if err := s.httpManager.StartTLS(s.cfg.Server.CertFile, s.cfg.Server.KeyFile); err != nil {
			return err
		}
		s.logger.Info("HTTPS server started", zap.String("addr", s.cfg.Server.Addr))
		return nil
	}
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.cfg.Server.Addr))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。
// 顺序：先停止接入流量，再关闭引擎，最后释放旁路依赖。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器，等待在途请求完成
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭治理引擎（冲刷旁路落盘）
	if s.governor != nil {
		if err := s.governor.Close(); err != nil {
			s.logger.Error("Governor shutdown error", zap.Error(err))
		}
	}

	// 3. 释放存储与缓存连接
	if s.poolManager != nil {
		if err := s.poolManager.Close(); err != nil {
			s.logger.Error("Database pool shutdown error", zap.Error(err))
		}
	}
	if s.resultCache != nil {
		if err := s.resultCache.Close(); err != nil {
			s.logger.Error("Result cache shutdown error", zap.Error(err))
		}
	}

	// 4. 冲刷遥测数据
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

// =============================================================================
// ⚙️ 配置映射
// =============================================================================

func budgetConfigFrom(c config.BudgetConfig) budget.Config {
	return budget.Config{
		DailyBudget:         c.DailyBudget,
		MonthlyBudget:       c.MonthlyBudget,
		MaxTokensPerRequest: c.MaxTokensPerRequest,
		ReservePercentage:   c.ReservePercentage,
		WarningThreshold:    c.WarningThreshold,
		CriticalThreshold:   c.CriticalThreshold,
	}
}

func costConfigFrom(c config.CostConfig) budget.CostConfig {
	return budget.CostConfig{
		CostPerInputToken:  c.CostPerInputToken,
		CostPerOutputToken: c.CostPerOutputToken,
		Currency:           c.Currency,
	}
}

func optimizerConfigFrom(c config.OptimizerConfig) optimizer.Config {
	return optimizer.Config{
		DefaultQualityThreshold: c.DefaultQualityThreshold,
		AdaptiveTokenLimit:      c.AdaptiveTokenLimit,
		TemplateTokenLimit:      c.TemplateTokenLimit,
		SessionHistoryLimit:     c.SessionHistoryLimit,
	}
}
