// Package config loads and validates the portal service configuration from
// environment variables and an optional config file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/spf13/viper"
)

// Environment represents the application's running environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Port           string      `mapstructure:"PORT" yaml:"port"`
	AllowedOrigins []string    `mapstructure:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	Version        string      `mapstructure:"VERSION" yaml:"version"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For is honoured. Empty trusts none.
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES" yaml:"trusted_proxies"`
}

// RedisConfig holds Redis connection details. When Enabled is false the
// service runs with in-process broadcast and verification storage.
type RedisConfig struct {
	Enabled      bool   `mapstructure:"ENABLED" yaml:"enabled"`
	Address      string `mapstructure:"ADDRESS" yaml:"address"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	DB           int    `mapstructure:"DB" yaml:"db"`
	UseTLS       bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	PoolSize     int    `mapstructure:"POOL_SIZE" yaml:"pool_size"`
	MinIdleConns int    `mapstructure:"MIN_IDLE_CONNS" yaml:"min_idle_conns"`
}

// PortalConfig points at the external document store API.
type PortalConfig struct {
	BaseURL        string `mapstructure:"BASE_URL" yaml:"base_url"`
	APIKey         string `mapstructure:"API_KEY" yaml:"api_key"`
	TimeoutSeconds int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

func (c PortalConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// InboxConfig tunes the notification inbox sessions.
type InboxConfig struct {
	// UserPageSize is the client-side page size for user inboxes.
	UserPageSize int `mapstructure:"USER_PAGE_SIZE" yaml:"user_page_size"`
	// CoachPageSize is the limit sent to the store for coach inboxes.
	CoachPageSize int `mapstructure:"COACH_PAGE_SIZE" yaml:"coach_page_size"`
	// AllLimit is the limit used when collecting every coach notification id.
	AllLimit            int `mapstructure:"ALL_LIMIT" yaml:"all_limit"`
	ConfirmDelayMS      int `mapstructure:"CONFIRM_DELAY_MS" yaml:"confirm_delay_ms"`
	PollIntervalSeconds int `mapstructure:"POLL_INTERVAL_SECONDS" yaml:"poll_interval_seconds"`
	NoticeTTLSeconds    int `mapstructure:"NOTICE_TTL_SECONDS" yaml:"notice_ttl_seconds"`
	SessionIdleMinutes  int `mapstructure:"SESSION_IDLE_MINUTES" yaml:"session_idle_minutes"`
}

func (c InboxConfig) ConfirmDelay() time.Duration {
	return time.Duration(c.ConfirmDelayMS) * time.Millisecond
}

func (c InboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c InboxConfig) NoticeTTL() time.Duration {
	return time.Duration(c.NoticeTTLSeconds) * time.Second
}

func (c InboxConfig) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// VerificationConfig holds one-time code settings.
type VerificationConfig struct {
	CodeTTLSeconds       int `mapstructure:"CODE_TTL_SECONDS" yaml:"code_ttl_seconds"`
	SweepIntervalSeconds int `mapstructure:"SWEEP_INTERVAL_SECONDS" yaml:"sweep_interval_seconds"`
}

func (c VerificationConfig) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLSeconds) * time.Second
}

func (c VerificationConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// EventServiceConfig holds configuration for the Redis-based broadcast channel.
type EventServiceConfig struct {
	// Timeout for publishing a single event to Redis (in seconds)
	PublishTimeoutSeconds int `mapstructure:"PUBLISH_TIMEOUT_SECONDS" yaml:"publish_timeout_seconds"`
	// Timeout for establishing a subscription via Redis (in seconds)
	SubscribeTimeoutSeconds int `mapstructure:"SUBSCRIBE_TIMEOUT_SECONDS" yaml:"subscribe_timeout_seconds"`
	// Buffer size for the channel delivering events to a single subscriber
	EventBufferSize int `mapstructure:"EVENT_BUFFER_SIZE" yaml:"event_buffer_size"`
}

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Maximum verification code requests per address per window
	CodeRequestsPerWindow int `mapstructure:"CODE_REQUESTS_PER_WINDOW" yaml:"code_requests_per_window"`
	WindowSeconds         int `mapstructure:"WINDOW_SECONDS" yaml:"window_seconds"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// WorkerPoolConfig holds configuration for the background job pool.
type WorkerPoolConfig struct {
	MaxWorkers             int `mapstructure:"MAX_WORKERS" yaml:"max_workers"`
	QueueSize              int `mapstructure:"QUEUE_SIZE" yaml:"queue_size"`
	ShutdownTimeoutSeconds int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdown_timeout_seconds"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server       ServerConfig       `mapstructure:"SERVER" yaml:"server"`
	Redis        RedisConfig        `mapstructure:"REDIS" yaml:"redis"`
	Portal       PortalConfig       `mapstructure:"PORTAL" yaml:"portal"`
	Inbox        InboxConfig        `mapstructure:"INBOX" yaml:"inbox"`
	Verification VerificationConfig `mapstructure:"VERIFICATION" yaml:"verification"`
	EventService EventServiceConfig `mapstructure:"EVENT_SERVICE" yaml:"event_service"`
	RateLimit    RateLimitConfig    `mapstructure:"RATE_LIMIT" yaml:"rate_limit"`
	WorkerPool   WorkerPoolConfig   `mapstructure:"WORKER_POOL" yaml:"worker_pool"`
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("SERVER.VERSION", "dev")
	v.SetDefault("SERVER.TRUSTED_PROXIES", []string{})
	v.SetDefault("REDIS.ENABLED", false)
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 3)
	v.SetDefault("REDIS.MIN_IDLE_CONNS", 1)
	v.SetDefault("PORTAL.BASE_URL", "http://localhost:5000")
	v.SetDefault("PORTAL.API_KEY", "")
	v.SetDefault("PORTAL.TIMEOUT_SECONDS", 10)
	v.SetDefault("INBOX.USER_PAGE_SIZE", 5)
	v.SetDefault("INBOX.COACH_PAGE_SIZE", 5)
	v.SetDefault("INBOX.ALL_LIMIT", 1000)
	v.SetDefault("INBOX.CONFIRM_DELAY_MS", 500)
	v.SetDefault("INBOX.POLL_INTERVAL_SECONDS", 300)
	v.SetDefault("INBOX.NOTICE_TTL_SECONDS", 3)
	v.SetDefault("INBOX.SESSION_IDLE_MINUTES", 30)
	v.SetDefault("VERIFICATION.CODE_TTL_SECONDS", 600)
	v.SetDefault("VERIFICATION.SWEEP_INTERVAL_SECONDS", 60)
	v.SetDefault("EVENT_SERVICE.PUBLISH_TIMEOUT_SECONDS", 5)
	v.SetDefault("EVENT_SERVICE.SUBSCRIBE_TIMEOUT_SECONDS", 10)
	v.SetDefault("EVENT_SERVICE.EVENT_BUFFER_SIZE", 100)
	v.SetDefault("RATE_LIMIT.CODE_REQUESTS_PER_WINDOW", 5)
	v.SetDefault("RATE_LIMIT.WINDOW_SECONDS", 600)
	v.SetDefault("WORKER_POOL.MAX_WORKERS", 4)
	v.SetDefault("WORKER_POOL.QUEUE_SIZE", 256)
	v.SetDefault("WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", 10)
}

var envBindings = [][2]string{
	// Server config
	{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
	{"SERVER.PORT", "PORT"},
	{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
	{"SERVER.VERSION", "VERSION"},
	{"SERVER.TRUSTED_PROXIES", "TRUSTED_PROXIES"},
	// Redis config
	{"REDIS.ENABLED", "REDIS_ENABLED"},
	{"REDIS.ADDRESS", "REDIS_ADDRESS"},
	{"REDIS.PASSWORD", "REDIS_PASSWORD"},
	{"REDIS.DB", "REDIS_DB"},
	{"REDIS.USE_TLS", "REDIS_USE_TLS"},
	// Document store
	{"PORTAL.BASE_URL", "PORTAL_BASE_URL"},
	{"PORTAL.API_KEY", "PORTAL_API_KEY"},
	{"PORTAL.TIMEOUT_SECONDS", "PORTAL_TIMEOUT_SECONDS"},
	// Inbox
	{"INBOX.USER_PAGE_SIZE", "INBOX_USER_PAGE_SIZE"},
	{"INBOX.COACH_PAGE_SIZE", "INBOX_COACH_PAGE_SIZE"},
	{"INBOX.ALL_LIMIT", "INBOX_ALL_LIMIT"},
	{"INBOX.CONFIRM_DELAY_MS", "INBOX_CONFIRM_DELAY_MS"},
	{"INBOX.POLL_INTERVAL_SECONDS", "INBOX_POLL_INTERVAL_SECONDS"},
	{"INBOX.NOTICE_TTL_SECONDS", "INBOX_NOTICE_TTL_SECONDS"},
	{"INBOX.SESSION_IDLE_MINUTES", "INBOX_SESSION_IDLE_MINUTES"},
	// Verification codes
	{"VERIFICATION.CODE_TTL_SECONDS", "VERIFICATION_CODE_TTL_SECONDS"},
	{"VERIFICATION.SWEEP_INTERVAL_SECONDS", "VERIFICATION_SWEEP_INTERVAL_SECONDS"},
	// Event service config
	{"EVENT_SERVICE.PUBLISH_TIMEOUT_SECONDS", "EVENT_SERVICE_PUBLISH_TIMEOUT_SECONDS"},
	{"EVENT_SERVICE.SUBSCRIBE_TIMEOUT_SECONDS", "EVENT_SERVICE_SUBSCRIBE_TIMEOUT_SECONDS"},
	{"EVENT_SERVICE.EVENT_BUFFER_SIZE", "EVENT_SERVICE_EVENT_BUFFER_SIZE"},
	// Rate limit config
	{"RATE_LIMIT.CODE_REQUESTS_PER_WINDOW", "RATE_LIMIT_CODE_REQUESTS_PER_WINDOW"},
	{"RATE_LIMIT.WINDOW_SECONDS", "RATE_LIMIT_WINDOW_SECONDS"},
	// WorkerPool config
	{"WORKER_POOL.MAX_WORKERS", "WORKER_POOL_MAX_WORKERS"},
	{"WORKER_POOL.QUEUE_SIZE", "WORKER_POOL_QUEUE_SIZE"},
	{"WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", "WORKER_POOL_SHUTDOWN_TIMEOUT_SECONDS"},
}

// LoadConfig reads defaults, an optional file named by CONFIG_FILE and the
// environment, in increasing precedence, then validates the result.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	if err := v.BindEnv("CONFIG_FILE"); err != nil {
		return nil, fmt.Errorf("failed to bind CONFIG_FILE: %w", err)
	}
	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	log.Infow("Configuration loaded",
		"environment", v.GetString("SERVER.ENVIRONMENT"),
		"server_port", v.GetString("SERVER.PORT"),
		"portal_base_url", v.GetString("PORTAL.BASE_URL"),
		"redis_enabled", v.GetBool("REDIS.ENABLED"),
		"allowed_origins", v.GetString("SERVER.ALLOWED_ORIGINS"),
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Info("Configuration validated successfully")
	return &cfg, nil
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if !containsWildcard(cfg.Server.AllowedOrigins) {
		for _, origin := range cfg.Server.AllowedOrigins {
			if _, err := url.ParseRequestURI(origin); err != nil {
				return fmt.Errorf("invalid allowed origin '%s': %w", origin, err)
			}
		}
	}

	if cfg.Redis.Enabled && cfg.Redis.Address == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}
	if cfg.Redis.Enabled && cfg.Redis.Password == "" && cfg.Redis.UseTLS {
		log.Warn("Redis password is not set, but TLS is enabled. Ensure this is correct for your Redis provider.")
	}

	if cfg.Portal.BaseURL == "" {
		return fmt.Errorf("portal base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.Portal.BaseURL); err != nil {
		return fmt.Errorf("invalid portal base URL: %w", err)
	}
	if cfg.Portal.TimeoutSeconds <= 0 {
		return fmt.Errorf("portal timeout must be positive")
	}

	if cfg.Inbox.UserPageSize <= 0 || cfg.Inbox.CoachPageSize <= 0 {
		return fmt.Errorf("inbox page sizes must be positive")
	}
	if cfg.Inbox.AllLimit < cfg.Inbox.CoachPageSize {
		return fmt.Errorf("inbox all limit must be at least the coach page size")
	}
	if cfg.Inbox.ConfirmDelayMS < 0 {
		return fmt.Errorf("inbox confirm delay cannot be negative")
	}
	if cfg.Inbox.PollIntervalSeconds <= 0 {
		return fmt.Errorf("inbox poll interval must be positive")
	}
	if cfg.Inbox.NoticeTTLSeconds <= 0 {
		return fmt.Errorf("inbox notice TTL must be positive")
	}
	if cfg.Inbox.SessionIdleMinutes <= 0 {
		return fmt.Errorf("inbox session idle timeout must be positive")
	}

	if cfg.Verification.CodeTTLSeconds <= 0 {
		return fmt.Errorf("verification code TTL must be positive")
	}
	if cfg.Verification.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("verification sweep interval must be positive")
	}

	if cfg.EventService.PublishTimeoutSeconds <= 0 {
		return fmt.Errorf("event service publish timeout must be positive")
	}
	if cfg.EventService.SubscribeTimeoutSeconds <= 0 {
		return fmt.Errorf("event service subscribe timeout must be positive")
	}
	if cfg.EventService.EventBufferSize <= 0 {
		return fmt.Errorf("event service buffer size must be positive")
	}

	if cfg.RateLimit.CodeRequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit code requests per window must be positive")
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate limit window seconds must be positive")
	}

	if cfg.WorkerPool.MaxWorkers <= 0 {
		return fmt.Errorf("worker pool max workers must be positive")
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		return fmt.Errorf("worker pool queue size must be positive")
	}
	if cfg.WorkerPool.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("worker pool shutdown timeout must be positive")
	}

	return nil
}

// containsWildcard checks if the list of allowed origins contains the wildcard "*".
func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
