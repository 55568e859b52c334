package config

import (
	"fmt"
	"strings"

	"github.com/mixpitch-payouts/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Security  SecurityConfig  `mapstructure:"security"`
	Payout    PayoutConfig    `mapstructure:"payout"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 管理端 JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	LoginRateLimit LoginRateLimitConfig `mapstructure:"login_rate_limit"`
}

// LoginRateLimitConfig 登录限流配置
type LoginRateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxAttempts   int `mapstructure:"max_attempts"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// PayoutConfig 分账策略配置
type PayoutConfig struct {
	DefaultCommissionRate float64          `mapstructure:"default_commission_rate"` // 0~1 小数
	DefaultCurrency       string           `mapstructure:"default_currency"`
	Hold                  HoldConfig       `mapstructure:"hold"`
	Processing            ProcessingConfig `mapstructure:"processing"`
}

// HoldConfig 打款冻结期配置
type HoldConfig struct {
	Enabled             bool           `mapstructure:"enabled"`
	DefaultDays         int            `mapstructure:"default_days"`
	WorkflowDays        map[string]int `mapstructure:"workflow_days"` // 按流程类型覆盖天数
	BusinessDaysOnly    bool           `mapstructure:"business_days_only"`
	ProcessingTime      string         `mapstructure:"processing_time"` // 每日放款时间 HH:MM
	MinimumHoldHours    int            `mapstructure:"minimum_hold_hours"`
	AllowAdminBypass    bool           `mapstructure:"allow_admin_bypass"`
	RequireBypassReason bool           `mapstructure:"require_bypass_reason"`
}

// ProcessingConfig 批量打款处理配置
type ProcessingConfig struct {
	BatchSize         int `mapstructure:"batch_size"`
	MaxAttempts       int `mapstructure:"max_attempts"`
	ErrorSampleLimit  int `mapstructure:"error_sample_limit"`
	StaleAfterMinutes int `mapstructure:"stale_after_minutes"`
	IntervalSeconds   int `mapstructure:"interval_seconds"`
}

// ProvidersConfig 打款提供方配置
type ProvidersConfig struct {
	Default string               `mapstructure:"default"`
	Stripe  StripeProviderConfig `mapstructure:"stripe"`
	PayPal  PayPalProviderConfig `mapstructure:"paypal"`
}

// StripeProviderConfig Stripe Connect 转账配置
type StripeProviderConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SecretKey  string `mapstructure:"secret_key"`
	APIBaseURL string `mapstructure:"api_base_url"`
	TimeoutMS  int    `mapstructure:"timeout_ms"`
}

// PayPalProviderConfig PayPal Payouts 配置
type PayPalProviderConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BaseURL      string `mapstructure:"base_url"`
	TimeoutMS    int    `mapstructure:"timeout_ms"`
	EmailSubject string `mapstructure:"email_subject"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")     // 从当前目录查找
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "payouts.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/payouts.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expire_hours", 24)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "mp")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("security.login_rate_limit.window_seconds", 300)
	viper.SetDefault("security.login_rate_limit.max_attempts", 5)
	viper.SetDefault("security.login_rate_limit.block_seconds", 900)
	viper.SetDefault("payout.default_commission_rate", 0.10)
	viper.SetDefault("payout.default_currency", "USD")
	viper.SetDefault("payout.hold.enabled", true)
	viper.SetDefault("payout.hold.default_days", 7)
	viper.SetDefault("payout.hold.workflow_days", map[string]int{
		"standard":          7,
		"contest":           0,
		"client_management": 0,
		"direct_hire":       7,
	})
	viper.SetDefault("payout.hold.business_days_only", false)
	viper.SetDefault("payout.hold.processing_time", "09:00")
	viper.SetDefault("payout.hold.minimum_hold_hours", 0)
	viper.SetDefault("payout.hold.allow_admin_bypass", true)
	viper.SetDefault("payout.hold.require_bypass_reason", true)
	viper.SetDefault("payout.processing.batch_size", 200)
	viper.SetDefault("payout.processing.max_attempts", 3)
	viper.SetDefault("payout.processing.error_sample_limit", 50)
	viper.SetDefault("payout.processing.stale_after_minutes", 30)
	viper.SetDefault("payout.processing.interval_seconds", 60)
	viper.SetDefault("providers.default", "stripe")
	viper.SetDefault("providers.stripe.enabled", true)
	viper.SetDefault("providers.stripe.secret_key", "")
	viper.SetDefault("providers.stripe.api_base_url", "https://api.stripe.com")
	viper.SetDefault("providers.stripe.timeout_ms", 12000)
	viper.SetDefault("providers.paypal.enabled", false)
	viper.SetDefault("providers.paypal.client_id", "")
	viper.SetDefault("providers.paypal.client_secret", "")
	viper.SetDefault("providers.paypal.base_url", "https://api-m.sandbox.paypal.com")
	viper.SetDefault("providers.paypal.timeout_ms", 12000)
	viper.SetDefault("providers.paypal.email_subject", "You have a payout from MixPitch")

	// 环境变量支持
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // server.port -> SERVER_PORT

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}
