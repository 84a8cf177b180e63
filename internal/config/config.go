package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the campaign engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Directory DirectoryConfig `yaml:"directory"`
	Audit     AuditConfig     `yaml:"audit"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	Host      string `yaml:"host"`
	PublicURL string `yaml:"public_url"` // base for scheduler callbacks
	// RunWorker starts queue consumers inside the API process.
	RunWorker      bool     `yaml:"run_worker"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// InternalToken guards the scheduler callback and engagement endpoints.
	InternalToken string `yaml:"internal_token"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
	MigrationsPath  string `yaml:"migrations_path"`
}

// RedisConfig is optional; an empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// QueueConfig selects the send-job queue.
type QueueConfig struct {
	Driver   string `yaml:"driver"` // "memory" or "amqp"
	AMQPURL  string `yaml:"amqp_url"`
	Name     string `yaml:"name"`
	Workers  int    `yaml:"workers"`
	Prefetch int    `yaml:"prefetch"`
}

// DispatchConfig bounds the per-recipient fan-out.
type DispatchConfig struct {
	Concurrency        int `yaml:"concurrency"`
	UnitTimeoutSeconds int `yaml:"unit_timeout_seconds"`
	ListTimeoutSeconds int `yaml:"list_timeout_seconds"`
}

// UnitTimeout is the ceiling for one recipient's render+transmit+record.
func (c DispatchConfig) UnitTimeout() time.Duration {
	return time.Duration(c.UnitTimeoutSeconds) * time.Second
}

// ListTimeout is the ceiling for resolving one recipient list.
func (c DispatchConfig) ListTimeout() time.Duration {
	return time.Duration(c.ListTimeoutSeconds) * time.Second
}

// SchedulerConfig selects the deferred-execution backend.
type SchedulerConfig struct {
	Driver   string `yaml:"driver"` // "local" or "http"
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Timezone string `yaml:"timezone"`
}

// DirectoryConfig selects how recipient lists are materialized.
type DirectoryConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "http"
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	PageSize int    `yaml:"page_size"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	Driver      string `yaml:"driver"` // "log" or "sqs"
	SQSQueueURL string `yaml:"sqs_queue_url"`
	Region      string `yaml:"region"`
}

// TrackingConfig controls signed redirect URLs.
type TrackingConfig struct {
	SigningSecret    string `yaml:"signing_secret"`
	AuthUser         string `yaml:"auth_user"`
	ShortURLBase     string `yaml:"short_url_base"`
	LinkTTLHours     int    `yaml:"link_ttl_hours"`
	ClockSkewSeconds int    `yaml:"clock_skew_seconds"`
	CacheTTLSeconds  int    `yaml:"cache_ttl_seconds"`
	// EngagementQueueURL is the SQS queue carrying reply/open events.
	// Empty disables the consumer.
	EngagementQueueURL string `yaml:"engagement_queue_url"`
}

// LinkTTL is how long a signed redirect stays valid.
func (c TrackingConfig) LinkTTL() time.Duration {
	return time.Duration(c.LinkTTLHours) * time.Hour
}

// ClockSkew is the tolerance applied to valid_until.
func (c TrackingConfig) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

// CacheTTL bounds how long a resolved redirect chain is cached.
func (c TrackingConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ChannelsConfig holds per-channel transport settings.
type ChannelsConfig struct {
	SMS   GatewayConfig `yaml:"sms"`
	Push  GatewayConfig `yaml:"push"`
	Email EmailConfig   `yaml:"email"`
}

// GatewayConfig describes an HTTP delivery gateway.
type GatewayConfig struct {
	Enabled    bool   `yaml:"enabled"`
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
	Sender     string `yaml:"sender"`
	RatePerSec int    `yaml:"rate_per_sec"`
}

// EmailConfig describes the email transport.
type EmailConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Driver     string `yaml:"driver"` // "ses" or "smtp"
	From       string `yaml:"from"`
	FromName   string `yaml:"from_name"`
	Region     string `yaml:"region"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	SMTPHost   string `yaml:"smtp_host"`
	SMTPPort   int    `yaml:"smtp_port"`
	SMTPUser   string `yaml:"smtp_user"`
	SMTPPass   string `yaml:"smtp_pass"`
	RatePerSec int    `yaml:"rate_per_sec"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Load reads a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied and no
// backends configured.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFromEnv loads .env (if present), then the YAML file (if present),
// then applies environment overrides.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &Config{}
		cfg.applyDefaults()
	}

	overrideString(&cfg.Database.URL, "DATABASE_URL")
	overrideString(&cfg.Redis.Addr, "REDIS_ADDR")
	overrideString(&cfg.Redis.Password, "REDIS_PASSWORD")
	overrideString(&cfg.Queue.Driver, "QUEUE_DRIVER")
	overrideString(&cfg.Queue.AMQPURL, "AMQP_URL")
	overrideString(&cfg.Server.PublicURL, "PUBLIC_URL")
	overrideString(&cfg.Server.InternalToken, "INTERNAL_TOKEN")
	overrideString(&cfg.Scheduler.BaseURL, "SCHEDULER_URL")
	overrideString(&cfg.Scheduler.APIKey, "SCHEDULER_API_KEY")
	overrideString(&cfg.Directory.BaseURL, "DIRECTORY_URL")
	overrideString(&cfg.Directory.APIKey, "DIRECTORY_API_KEY")
	overrideString(&cfg.Audit.SQSQueueURL, "AUDIT_SQS_QUEUE_URL")
	overrideString(&cfg.Tracking.SigningSecret, "SIGNING_SECRET")
	overrideString(&cfg.Tracking.ShortURLBase, "SHORT_URL_BASE")
	overrideString(&cfg.Tracking.EngagementQueueURL, "ENGAGEMENT_SQS_QUEUE_URL")
	overrideString(&cfg.Channels.SMS.APIKey, "SMS_GATEWAY_API_KEY")
	overrideString(&cfg.Channels.Push.APIKey, "PUSH_GATEWAY_API_KEY")
	overrideString(&cfg.Channels.Email.AccessKey, "AWS_SES_ACCESS_KEY")
	overrideString(&cfg.Channels.Email.SecretKey, "AWS_SES_SECRET_KEY")
	overrideString(&cfg.Channels.Email.SMTPPass, "SMTP_PASSWORD")
	overrideString(&cfg.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}

	return cfg, nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = "migrations"
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = "memory"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "campaign_sends"
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.Prefetch == 0 {
		cfg.Queue.Prefetch = cfg.Queue.Workers
	}
	if cfg.Dispatch.Concurrency == 0 {
		cfg.Dispatch.Concurrency = 16
	}
	if cfg.Dispatch.UnitTimeoutSeconds == 0 {
		cfg.Dispatch.UnitTimeoutSeconds = 30
	}
	if cfg.Dispatch.ListTimeoutSeconds == 0 {
		cfg.Dispatch.ListTimeoutSeconds = 60
	}
	if cfg.Scheduler.Driver == "" {
		cfg.Scheduler.Driver = "local"
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}
	if cfg.Directory.Driver == "" {
		cfg.Directory.Driver = "postgres"
	}
	if cfg.Directory.PageSize == 0 {
		cfg.Directory.PageSize = 500
	}
	if cfg.Audit.Driver == "" {
		cfg.Audit.Driver = "log"
	}
	if cfg.Tracking.AuthUser == "" {
		cfg.Tracking.AuthUser = "redirect"
	}
	if cfg.Tracking.LinkTTLHours == 0 {
		cfg.Tracking.LinkTTLHours = 24 * 90
	}
	if cfg.Tracking.ClockSkewSeconds == 0 {
		cfg.Tracking.ClockSkewSeconds = 30
	}
	if cfg.Tracking.CacheTTLSeconds == 0 {
		cfg.Tracking.CacheTTLSeconds = 600
	}
	if cfg.Channels.Email.Driver == "" {
		cfg.Channels.Email.Driver = "ses"
	}
	if cfg.Channels.Email.Region == "" {
		cfg.Channels.Email.Region = "us-east-1"
	}
	if cfg.Channels.Email.SMTPPort == 0 {
		cfg.Channels.Email.SMTPPort = 587
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate rejects combinations that cannot start.
func (cfg *Config) Validate() error {
	if cfg.Tracking.SigningSecret == "" {
		return fmt.Errorf("tracking.signing_secret is required")
	}
	if cfg.Tracking.ShortURLBase == "" {
		return fmt.Errorf("tracking.short_url_base is required")
	}
	switch cfg.Queue.Driver {
	case "memory":
	case "amqp":
		if cfg.Queue.AMQPURL == "" {
			return fmt.Errorf("queue.amqp_url is required for the amqp driver")
		}
	default:
		return fmt.Errorf("unknown queue.driver %q", cfg.Queue.Driver)
	}
	switch cfg.Scheduler.Driver {
	case "local":
	case "http":
		if cfg.Scheduler.BaseURL == "" {
			return fmt.Errorf("scheduler.base_url is required for the http driver")
		}
		if cfg.Server.PublicURL == "" {
			return fmt.Errorf("server.public_url is required for the http scheduler callback")
		}
	default:
		return fmt.Errorf("unknown scheduler.driver %q", cfg.Scheduler.Driver)
	}
	switch cfg.Directory.Driver {
	case "postgres":
	case "http":
		if cfg.Directory.BaseURL == "" {
			return fmt.Errorf("directory.base_url is required for the http driver")
		}
	default:
		return fmt.Errorf("unknown directory.driver %q", cfg.Directory.Driver)
	}
	switch cfg.Audit.Driver {
	case "log":
	case "sqs":
		if cfg.Audit.SQSQueueURL == "" {
			return fmt.Errorf("audit.sqs_queue_url is required for the sqs driver")
		}
	default:
		return fmt.Errorf("unknown audit.driver %q", cfg.Audit.Driver)
	}
	if cfg.Channels.Email.Enabled && cfg.Channels.Email.Driver != "ses" && cfg.Channels.Email.Driver != "smtp" {
		return fmt.Errorf("unknown channels.email.driver %q", cfg.Channels.Email.Driver)
	}
	return nil
}
