// =============================================================================
// 📦 PromptGate 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("PROMPTGATE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 PromptGate 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Budget 预算策略配置
	Budget BudgetConfig `yaml:"budget" env:"BUDGET"`

	// Cost 计价配置
	Cost CostConfig `yaml:"cost" env:"COST"`

	// Optimizer 优化器配置
	Optimizer OptimizerConfig `yaml:"optimizer" env:"OPTIMIZER"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Auth 鉴权配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" env:"MAX_HEADER_BYTES"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 限流速率（每秒请求数）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许跨域的来源，为空时拒绝跨域请求
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// TLS 证书文件，与 KeyFile 同时设置时启用 HTTPS
	CertFile string `yaml:"cert_file" env:"CERT_FILE"`
	// TLS 私钥文件
	KeyFile string `yaml:"key_file" env:"KEY_FILE"`
}

// BudgetConfig 预算策略配置
type BudgetConfig struct {
	// 每日预算（货币单位）
	DailyBudget float64 `yaml:"daily_budget" env:"DAILY_BUDGET"`
	// 每月预算（货币单位）
	MonthlyBudget float64 `yaml:"monthly_budget" env:"MONTHLY_BUDGET"`
	// 单请求 Token 上限
	MaxTokensPerRequest int64 `yaml:"max_tokens_per_request" env:"MAX_TOKENS_PER_REQUEST"`
	// 低优先级请求不可触碰的预留比例，取值 [0, 0.5]
	ReservePercentage float64 `yaml:"reserve_percentage" env:"RESERVE_PERCENTAGE"`
	// 警告阈值，取值 [0, 1]，必须小于 critical
	WarningThreshold float64 `yaml:"warning_threshold" env:"WARNING_THRESHOLD"`
	// 严重阈值，取值 [0, 1]
	CriticalThreshold float64 `yaml:"critical_threshold" env:"CRITICAL_THRESHOLD"`
	// 在途预留的存活时长
	AllocationTTL time.Duration `yaml:"allocation_ttl" env:"ALLOCATION_TTL"`
	// 过期预留的清扫间隔
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// 告警环形缓冲上限
	AlertHistoryLimit int `yaml:"alert_history_limit" env:"ALERT_HISTORY_LIMIT"`
}

// CostConfig 计价配置
type CostConfig struct {
	// 每 1000 输入 Token 的价格
	CostPerInputToken float64 `yaml:"cost_per_input_token" env:"COST_PER_INPUT_TOKEN"`
	// 每 1000 输出 Token 的价格
	CostPerOutputToken float64 `yaml:"cost_per_output_token" env:"COST_PER_OUTPUT_TOKEN"`
	// 货币单位
	Currency string `yaml:"currency" env:"CURRENCY"`
}

// OptimizerConfig 优化器配置
type OptimizerConfig struct {
	// Token 计数器: heuristic, tiktoken
	TokenCounter string `yaml:"token_counter" env:"TOKEN_COUNTER"`
	// tiktoken 计数器使用的模型名
	CounterModel string `yaml:"counter_model" env:"COUNTER_MODEL"`
	// 默认质量下限，取值 [0, 100]
	DefaultQualityThreshold float64 `yaml:"default_quality_threshold" env:"DEFAULT_QUALITY_THRESHOLD"`
	// 自适应策略的压缩触发 Token 数
	AdaptiveTokenLimit int64 `yaml:"adaptive_token_limit" env:"ADAPTIVE_TOKEN_LIMIT"`
	// 模板策略的 Token 上限
	TemplateTokenLimit int64 `yaml:"template_token_limit" env:"TEMPLATE_TOKEN_LIMIT"`
	// 会话历史条数上限
	SessionHistoryLimit int `yaml:"session_history_limit" env:"SESSION_HISTORY_LIMIT"`
	// 是否启用结果缓存
	CacheEnabled bool `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	// 结果缓存 TTL
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// AuthConfig 鉴权配置。APIKey 与 JWTSecret 均为空时关闭鉴权。
type AuthConfig struct {
	// API Key（X-API-Key 头）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// JWT HS256 密钥
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// JWT RS256 公钥（PEM）
	JWTPublicKey string `yaml:"jwt_public_key" env:"JWT_PUBLIC_KEY"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "PROMPTGATE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置，任何一项不合法都视为致命错误
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server addr must not be empty")
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "rate_limit_rps must not be negative")
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		errs = append(errs, "cert_file and key_file must be set together")
	}

	if c.Budget.DailyBudget <= 0 {
		errs = append(errs, "daily_budget must be positive")
	}
	if c.Budget.MonthlyBudget <= 0 {
		errs = append(errs, "monthly_budget must be positive")
	}
	if c.Budget.MaxTokensPerRequest <= 0 {
		errs = append(errs, "max_tokens_per_request must be positive")
	}
	if c.Budget.ReservePercentage < 0 || c.Budget.ReservePercentage > 0.5 {
		errs = append(errs, "reserve_percentage must be in [0, 0.5]")
	}
	if c.Budget.WarningThreshold < 0 || c.Budget.WarningThreshold > 1 {
		errs = append(errs, "warning_threshold must be in [0, 1]")
	}
	if c.Budget.CriticalThreshold < 0 || c.Budget.CriticalThreshold > 1 {
		errs = append(errs, "critical_threshold must be in [0, 1]")
	}
	if c.Budget.WarningThreshold >= c.Budget.CriticalThreshold {
		errs = append(errs, "warning_threshold must be below critical_threshold")
	}
	if c.Budget.AlertHistoryLimit <= 0 {
		errs = append(errs, "alert_history_limit must be positive")
	}

	if c.Cost.CostPerInputToken < 0 || c.Cost.CostPerOutputToken < 0 {
		errs = append(errs, "token costs must not be negative")
	}
	if c.Cost.Currency == "" {
		errs = append(errs, "currency must not be empty")
	}

	if c.Optimizer.TokenCounter != "heuristic" && c.Optimizer.TokenCounter != "tiktoken" {
		errs = append(errs, "token_counter must be heuristic or tiktoken")
	}
	if c.Optimizer.DefaultQualityThreshold < 0 || c.Optimizer.DefaultQualityThreshold > 100 {
		errs = append(errs, "default_quality_threshold must be in [0, 100]")
	}
	if c.Optimizer.AdaptiveTokenLimit <= 0 {
		errs = append(errs, "adaptive_token_limit must be positive")
	}
	if c.Optimizer.SessionHistoryLimit <= 0 {
		errs = append(errs, "session_history_limit must be positive")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, "database driver must be postgres or sqlite")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
