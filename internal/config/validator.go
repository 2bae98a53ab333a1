package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/harun/medibook/pkg/conversation"
)

var (
	telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	twilioSIDPattern     = regexp.MustCompile(`^AC[0-9a-fA-F]{32}$`)
	e164Pattern          = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTelegramToken validates a Telegram bot token
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}
	// <bot_id>:<secret>, e.g. 123456789:ABCdefGHIjklMNOpqrsTUVwxyz
	if !telegramTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid Telegram bot token format")
	}
	return nil
}

// ValidateTwilioAccountSID validates a Twilio account SID
func (v *Validator) ValidateTwilioAccountSID(sid string) error {
	if sid == "" {
		return fmt.Errorf("twilio account SID cannot be empty")
	}
	if !twilioSIDPattern.MatchString(sid) {
		return fmt.Errorf("invalid Twilio account SID format (should be AC followed by 32 hex characters)")
	}
	return nil
}

// ValidatePhoneNumber validates an E.164 number; a "whatsapp:" prefix is
// accepted.
func (v *Validator) ValidatePhoneNumber(number string) error {
	number = strings.TrimPrefix(number, "whatsapp:")
	if number == "" {
		return fmt.Errorf("phone number cannot be empty")
	}
	if !e164Pattern.MatchString(number) {
		return fmt.Errorf("invalid phone number %q (must be E.164, e.g. +77011234567)", number)
	}
	return nil
}

// ValidateAdminChatIDs rejects zero ids.
func (v *Validator) ValidateAdminChatIDs(ids []int64) error {
	for i, id := range ids {
		if id == 0 {
			return fmt.Errorf("admin chat id %d is zero", i)
		}
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule validates the session cleanup cron expression
func (v *Validator) ValidateSchedule(expr string) error {
	if expr == "" {
		return fmt.Errorf("cleanup schedule cannot be empty")
	}
	return conversation.ValidateSchedule(expr)
}

// ValidateIdentityDriver validates the identity mapper driver
func (v *Validator) ValidateIdentityDriver(driver string) error {
	switch driver {
	case IdentityHash, IdentitySQLite:
		return nil
	}
	return fmt.Errorf("invalid identity driver: %s (must be one of: %s, %s)", driver, IdentityHash, IdentitySQLite)
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Telegram.BotToken != "" {
		if err := v.ValidateTelegramToken(cfg.Telegram.BotToken); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateAdminChatIDs(cfg.Telegram.AdminChatIDs); err != nil {
		errors = append(errors, err)
	}

	if cfg.WhatsApp.AccountSID != "" {
		if err := v.ValidateTwilioAccountSID(cfg.WhatsApp.AccountSID); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.WhatsApp.FromNumber != "" {
		if err := v.ValidatePhoneNumber(cfg.WhatsApp.FromNumber); err != nil {
			errors = append(errors, fmt.Errorf("whatsapp.from_number: %w", err))
		}
	}

	if cfg.Instagram.PageAccessToken != "" && cfg.Instagram.AppSecret == "" {
		errors = append(errors, fmt.Errorf("instagram.app_secret is required with a page access token"))
	}

	if err := v.ValidateSchedule(cfg.Session.CleanupSchedule); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateIdentityDriver(cfg.Identity.Driver); err != nil {
		errors = append(errors, err)
	}

	if cfg.Retry.Attempts < 1 {
		errors = append(errors, fmt.Errorf("retry.attempts must be >= 1"))
	}
	if cfg.Retry.MinWaitSeconds < 0 || cfg.Retry.MaxWaitSeconds < 0 {
		errors = append(errors, fmt.Errorf("retry wait bounds must be >= 0"))
	}
	if cfg.Webhook.DedupeTTLSeconds < 0 {
		errors = append(errors, fmt.Errorf("webhook.dedupe_ttl_seconds must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
