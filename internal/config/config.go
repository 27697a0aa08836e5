package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/paytrack-next/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	UserJWT  JWTConfig      `mapstructure:"user_jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	PhonePe  PhonePeConfig  `mapstructure:"phonepe"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Payment  PaymentConfig  `mapstructure:"payment"`
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
	Driver string             `mapstructure:"driver"` // sqlite / postgres
	DSN    string             `mapstructure:"dsn"`
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 用户 JWT 配置
type JWTConfig struct {
	SecretKey string `mapstructure:"secret"`
	Issuer    string `mapstructure:"issuer"`
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
	PaymentRateLimit RateLimitConfig `mapstructure:"payment_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// PhonePeConfig PhonePe 网关配置
type PhonePeConfig struct {
	ClientID         string `mapstructure:"client_id"`
	ClientSecret     string `mapstructure:"client_secret"`
	ClientVersion    string `mapstructure:"client_version"`
	Env              string `mapstructure:"env"` // SANDBOX / PRODUCTION
	BaseURL          string `mapstructure:"base_url"`
	OAuthURL         string `mapstructure:"oauth_url"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	QueryMaxRetries  int    `mapstructure:"query_max_retries"`
	CreateMaxRetries int    `mapstructure:"create_max_retries"`
	RetryBackoffMS   int    `mapstructure:"retry_backoff_ms"`
}

// Timeout 单次网关调用超时
func (c PhonePeConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 8 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBackoff 重试退避基数
func (c PhonePeConfig) RetryBackoff() time.Duration {
	if c.RetryBackoffMS <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// WebhookConfig 网关回调鉴权配置
type WebhookConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PaymentConfig 支付业务配置
type PaymentConfig struct {
	MobileDeepLinkBase    string `mapstructure:"mobile_deep_link_base"`
	WebFallbackBaseURL    string `mapstructure:"web_fallback_base_url"`
	WebSuccessPath        string `mapstructure:"web_success_path"`
	BlockOnAmountMismatch bool   `mapstructure:"block_on_amount_mismatch"`
	PollDelaySeconds      int    `mapstructure:"poll_delay_seconds"`
	PollMaxAttempts       int    `mapstructure:"poll_max_attempts"`
	SweepIntervalSeconds  int    `mapstructure:"sweep_interval_seconds"`
	SweepMinAgeSeconds    int    `mapstructure:"sweep_min_age_seconds"`
	SweepMaxAgeHours      int    `mapstructure:"sweep_max_age_hours"`
	SweepBatchSize        int    `mapstructure:"sweep_batch_size"`
	StatsCacheTTLSeconds  int    `mapstructure:"stats_cache_ttl_seconds"`
}

// Load 从 .env 与 config.yml 加载配置
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warnw("dotenv_load_failed", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./")
	viper.AddConfigPath("../") // 从 cmd/server 运行
	viper.AddConfigPath("./etc")

	setDefaults()

	// server.port -> SERVER_PORT
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

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
	cfg.PhonePe.Env = strings.ToUpper(strings.TrimSpace(cfg.PhonePe.Env))
	if cfg.PhonePe.QueryMaxRetries > 2 {
		cfg.PhonePe.QueryMaxRetries = 2
	}

	return &cfg
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "paytrack.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/paytrack.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("user_jwt.secret", "user-change-me-in-production")
	viper.SetDefault("user_jwt.issuer", "")
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "pt")
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
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
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
	viper.SetDefault("security.payment_rate_limit.window_seconds", 60)
	viper.SetDefault("security.payment_rate_limit.max_requests", 30)
	viper.SetDefault("security.payment_rate_limit.block_seconds", 120)
	viper.SetDefault("phonepe.client_id", "")
	viper.SetDefault("phonepe.client_secret", "")
	viper.SetDefault("phonepe.client_version", "1")
	viper.SetDefault("phonepe.env", "SANDBOX")
	viper.SetDefault("phonepe.base_url", "")
	viper.SetDefault("phonepe.oauth_url", "")
	viper.SetDefault("phonepe.timeout_seconds", 8)
	viper.SetDefault("phonepe.query_max_retries", 2)
	viper.SetDefault("phonepe.create_max_retries", 0)
	viper.SetDefault("phonepe.retry_backoff_ms", 300)
	viper.SetDefault("webhook.username", "")
	viper.SetDefault("webhook.password", "")
	viper.SetDefault("payment.mobile_deep_link_base", "naigaonmarketapp://payment")
	viper.SetDefault("payment.web_fallback_base_url", "https://nm.thelearningsetu.in")
	viper.SetDefault("payment.web_success_path", "/checkout/payment-success")
	viper.SetDefault("payment.block_on_amount_mismatch", false)
	viper.SetDefault("payment.poll_delay_seconds", 60)
	viper.SetDefault("payment.poll_max_attempts", 5)
	viper.SetDefault("payment.sweep_interval_seconds", 300)
	viper.SetDefault("payment.sweep_min_age_seconds", 600)
	viper.SetDefault("payment.sweep_max_age_hours", 48)
	viper.SetDefault("payment.sweep_batch_size", 50)
	viper.SetDefault("payment.stats_cache_ttl_seconds", 30)
}
