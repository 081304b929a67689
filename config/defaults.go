// =============================================================================
// 📦 PromptGate 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Budget:    DefaultBudgetConfig(),
		Cost:      DefaultCostConfig(),
		Optimizer: DefaultOptimizerConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Auth:      DefaultAuthConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultBudgetConfig 返回默认预算配置
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		DailyBudget:         100,
		MonthlyBudget:       2000,
		MaxTokensPerRequest: 50000,
		ReservePercentage:   0.2,
		WarningThreshold:    0.80,
		CriticalThreshold:   0.95,
		AllocationTTL:       10 * time.Minute,
		SweepInterval:       time.Minute,
		AlertHistoryLimit:   100,
	}
}

// DefaultCostConfig 返回默认计价配置
func DefaultCostConfig() CostConfig {
	return CostConfig{
		CostPerInputToken:  0.00003,
		CostPerOutputToken: 0.00006,
		Currency:           "USD",
	}
}

// DefaultOptimizerConfig 返回默认优化器配置
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		TokenCounter:            "heuristic",
		CounterModel:            "gpt-4",
		DefaultQualityThreshold: 70,
		AdaptiveTokenLimit:      1000,
		TemplateTokenLimit:      100,
		SessionHistoryLimit:     50,
		CacheEnabled:            false,
		CacheTTL:                time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "promptgate",
		Password:        "",
		Name:            "promptgate",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultAuthConfig 返回默认鉴权配置（默认关闭）
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		APIKey:       "",
		JWTSecret:    "",
		JWTPublicKey: "",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "promptgate",
		SampleRate:   0.1,
	}
}
