package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/medibook/pkg/conversation"
)

// Identity drivers.
const (
	IdentityHash   = "hash"
	IdentitySQLite = "sqlite"
)

// Config represents the main medibook configuration
type Config struct {
	Telegram  TelegramConfig  `json:"telegram" mapstructure:"telegram"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp" mapstructure:"whatsapp"`
	Instagram InstagramConfig `json:"instagram" mapstructure:"instagram"`

	Session  SessionConfig  `json:"session" mapstructure:"session"`
	Retry    RetryConfig    `json:"retry" mapstructure:"retry"`
	Webhook  WebhookConfig  `json:"webhook" mapstructure:"webhook"`
	Identity IdentityConfig `json:"identity" mapstructure:"identity"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken       string  `json:"bot_token" mapstructure:"bot_token"`
	APIEndpoint    string  `json:"api_endpoint" mapstructure:"api_endpoint"`
	AdminChatIDs   []int64 `json:"admin_chat_ids" mapstructure:"admin_chat_ids"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// WhatsAppConfig holds Twilio WhatsApp credentials
type WhatsAppConfig struct {
	AccountSID string `json:"account_sid" mapstructure:"account_sid"`
	AuthToken  string `json:"auth_token" mapstructure:"auth_token"`
	FromNumber string `json:"from_number" mapstructure:"from_number"`
	// WebhookURL is the public URL Twilio signs; empty derives it per request.
	WebhookURL string `json:"webhook_url" mapstructure:"webhook_url"`
}

// Configured reports whether all outbound credentials are present.
func (c WhatsAppConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// InstagramConfig holds Meta Graph API credentials
type InstagramConfig struct {
	PageAccessToken string `json:"page_access_token" mapstructure:"page_access_token"`
	AppSecret       string `json:"app_secret" mapstructure:"app_secret"`
	VerifyToken     string `json:"verify_token" mapstructure:"verify_token"`
	APIBase         string `json:"api_base" mapstructure:"api_base"`
	TimeoutSeconds  int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// Configured reports whether the adapter can send and verify.
func (c InstagramConfig) Configured() bool {
	return c.PageAccessToken != "" && c.AppSecret != ""
}

// SessionConfig controls conversation expiry
type SessionConfig struct {
	MaxAgeSeconds   int    `json:"max_age_seconds" mapstructure:"max_age_seconds"`
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
}

// MaxAge returns the idle lifetime of a session.
func (c SessionConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSeconds) * time.Second
}

// RetryConfig bounds outbound send retries
type RetryConfig struct {
	Attempts       int     `json:"attempts" mapstructure:"attempts"`
	Multiplier     float64 `json:"multiplier" mapstructure:"multiplier"`
	MinWaitSeconds float64 `json:"min_wait_seconds" mapstructure:"min_wait_seconds"`
	MaxWaitSeconds float64 `json:"max_wait_seconds" mapstructure:"max_wait_seconds"`
}

// MinWait returns the shortest backoff.
func (c RetryConfig) MinWait() time.Duration {
	return time.Duration(c.MinWaitSeconds * float64(time.Second))
}

// MaxWait returns the longest backoff.
func (c RetryConfig) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitSeconds * float64(time.Second))
}

// WebhookConfig holds webhook server configuration
type WebhookConfig struct {
	Host                   string `json:"host" mapstructure:"host"`
	Port                   int    `json:"port" mapstructure:"port"`
	RateLimitPerMinute     int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	DedupeTTLSeconds       int    `json:"dedupe_ttl_seconds" mapstructure:"dedupe_ttl_seconds"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
	MaxBodyBytes           int64  `json:"max_body_bytes" mapstructure:"max_body_bytes"`
	TelegramPathToken      string `json:"telegram_path_token" mapstructure:"telegram_path_token"`
	TelegramSecretToken    string `json:"telegram_secret_token" mapstructure:"telegram_secret_token"`
}

// IdentityConfig selects how native ids map to internal user ids
type IdentityConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // hash, sqlite
	DSN    string `json:"dsn" mapstructure:"dsn"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// TracingConfig controls OpenTelemetry spans
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			APIEndpoint:    "https://api.telegram.org/bot%s/%s",
			AdminChatIDs:   []int64{},
			TimeoutSeconds: 30,
		},
		Instagram: InstagramConfig{
			APIBase:        "https://graph.facebook.com/v18.0",
			TimeoutSeconds: 30,
		},
		Session: SessionConfig{
			MaxAgeSeconds:   86400,
			CleanupSchedule: "@every 1h",
		},
		Retry: RetryConfig{
			Attempts:       3,
			Multiplier:     2,
			MinWaitSeconds: 2,
			MaxWaitSeconds: 10,
		},
		Webhook: WebhookConfig{
			Host:                   "0.0.0.0",
			Port:                   8080,
			RateLimitPerMinute:     120,
			DedupeTTLSeconds:       300,
			ShutdownTimeoutSeconds: 30,
			MaxBodyBytes:           1 << 20,
		},
		Identity: IdentityConfig{
			Driver: IdentityHash,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "medibook",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Channels lists the channels with enough credentials to start.
func (c *Config) Channels() []string {
	var out []string
	if c.Telegram.BotToken != "" {
		out = append(out, "telegram")
	}
	if c.WhatsApp.Configured() {
		out = append(out, "whatsapp")
	}
	if c.Instagram.Configured() {
		out = append(out, "instagram")
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Channels()) == 0 {
		return fmt.Errorf("no channel configured: set telegram.bot_token, whatsapp credentials or instagram credentials")
	}

	switch c.Identity.Driver {
	case IdentityHash:
	case IdentitySQLite:
		if c.Identity.DSN == "" {
			return fmt.Errorf("identity.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid identity driver: %s (must be: hash, sqlite)", c.Identity.Driver)
	}

	if c.Session.MaxAgeSeconds <= 0 {
		return fmt.Errorf("session.max_age_seconds must be positive")
	}
	if err := conversation.ValidateSchedule(c.Session.CleanupSchedule); err != nil {
		return fmt.Errorf("session.cleanup_schedule: %w", err)
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if c.Retry.MaxWaitSeconds > 0 && c.Retry.MinWaitSeconds > c.Retry.MaxWaitSeconds {
		return fmt.Errorf("retry.min_wait_seconds exceeds retry.max_wait_seconds")
	}

	if c.Webhook.Port < 1 || c.Webhook.Port > 65535 {
		return fmt.Errorf("webhook.port out of range: %d", c.Webhook.Port)
	}

	if err := NewValidator().ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}
