package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. MEDIBOOK_TELEGRAM_BOT_TOKEN.
	EnvPrefix = "MEDIBOOK"

	appDir     = ".medibook"
	configName = "medibook.json"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file, when present, and applies environment
// overrides on top of the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only consults the environment for keys viper knows about.
	setDefaults(v, DefaultConfig())

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, appDir)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "medibook.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}
	if cfg.Identity.Driver == IdentitySQLite && cfg.Identity.DSN == "" {
		cfg.Identity.DSN = filepath.Join(cfg.DataDir, "identity.db")
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("telegram", cfg.Telegram)
	v.Set("whatsapp", cfg.WhatsApp)
	v.Set("instagram", cfg.Instagram)
	v.Set("session", cfg.Session)
	v.Set("retry", cfg.Retry)
	v.Set("webhook", cfg.Webhook)
	v.Set("identity", cfg.Identity)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		if err := v.SafeWriteConfig(); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	// credentials live in this file
	if err := os.Chmod(configPath, 0600); err != nil {
		return fmt.Errorf("failed to restrict config file permissions: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, appDir, configName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("telegram.bot_token", d.Telegram.BotToken)
	v.SetDefault("telegram.api_endpoint", d.Telegram.APIEndpoint)
	v.SetDefault("telegram.admin_chat_ids", d.Telegram.AdminChatIDs)
	v.SetDefault("telegram.timeout_seconds", d.Telegram.TimeoutSeconds)

	v.SetDefault("whatsapp.account_sid", d.WhatsApp.AccountSID)
	v.SetDefault("whatsapp.auth_token", d.WhatsApp.AuthToken)
	v.SetDefault("whatsapp.from_number", d.WhatsApp.FromNumber)
	v.SetDefault("whatsapp.webhook_url", d.WhatsApp.WebhookURL)

	v.SetDefault("instagram.page_access_token", d.Instagram.PageAccessToken)
	v.SetDefault("instagram.app_secret", d.Instagram.AppSecret)
	v.SetDefault("instagram.verify_token", d.Instagram.VerifyToken)
	v.SetDefault("instagram.api_base", d.Instagram.APIBase)
	v.SetDefault("instagram.timeout_seconds", d.Instagram.TimeoutSeconds)

	v.SetDefault("session.max_age_seconds", d.Session.MaxAgeSeconds)
	v.SetDefault("session.cleanup_schedule", d.Session.CleanupSchedule)

	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.min_wait_seconds", d.Retry.MinWaitSeconds)
	v.SetDefault("retry.max_wait_seconds", d.Retry.MaxWaitSeconds)

	v.SetDefault("webhook.host", d.Webhook.Host)
	v.SetDefault("webhook.port", d.Webhook.Port)
	v.SetDefault("webhook.rate_limit_per_minute", d.Webhook.RateLimitPerMinute)
	v.SetDefault("webhook.dedupe_ttl_seconds", d.Webhook.DedupeTTLSeconds)
	v.SetDefault("webhook.shutdown_timeout_seconds", d.Webhook.ShutdownTimeoutSeconds)
	v.SetDefault("webhook.max_body_bytes", d.Webhook.MaxBodyBytes)
	v.SetDefault("webhook.telegram_path_token", d.Webhook.TelegramPathToken)
	v.SetDefault("webhook.telegram_secret_token", d.Webhook.TelegramSecretToken)

	v.SetDefault("identity.driver", d.Identity.Driver)
	v.SetDefault("identity.dsn", d.Identity.DSN)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.console", d.Logging.Console)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("logging.audit_file", d.Logging.AuditFile)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)

	v.SetDefault("data_dir", d.DataDir)
}
