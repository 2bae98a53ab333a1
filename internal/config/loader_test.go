package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()

		cfg, err := NewLoader(filepath.Join(tmpDir, "nonexistent.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Webhook.Port)
		assert.Equal(t, IdentityHash, cfg.Identity.Driver)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"telegram": {
				"bot_token": "123:abc",
				"admin_chat_ids": [1001, 1002]
			},
			"whatsapp": {
				"account_sid": "AC0123456789abcdef0123456789abcdef",
				"auth_token": "secret",
				"from_number": "+15550001111"
			},
			"webhook": {"port": 9090},
			"retry": {"attempts": 5}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0600))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
		assert.Equal(t, []int64{1001, 1002}, cfg.Telegram.AdminChatIDs)
		assert.Equal(t, "+15550001111", cfg.WhatsApp.FromNumber)
		assert.Equal(t, 9090, cfg.Webhook.Port)
		assert.Equal(t, 5, cfg.Retry.Attempts)
		// untouched sections keep defaults
		assert.Equal(t, 2.0, cfg.Retry.Multiplier)
		assert.Equal(t, "@every 1h", cfg.Session.CleanupSchedule)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"identity": {"driver": "sqlite"}}`), 0600))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.NotEmpty(t, cfg.DataDir)
		assert.Equal(t, filepath.Join(cfg.DataDir, "medibook.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(cfg.DataDir, "audit.log"), cfg.Logging.AuditFile)
		assert.Equal(t, filepath.Join(cfg.DataDir, "identity.db"), cfg.Identity.DSN)
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"telegram": {"bot_token": "1:file"}}`), 0600))

		t.Setenv("MEDIBOOK_TELEGRAM_BOT_TOKEN", "2:env")
		t.Setenv("MEDIBOOK_WEBHOOK_PORT", "9443")
		t.Setenv("MEDIBOOK_DATA_DIR", tmpDir)

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "2:env", cfg.Telegram.BotToken)
		assert.Equal(t, 9443, cfg.Webhook.Port)
		assert.Equal(t, tmpDir, cfg.DataDir)
	})

	t.Run("environment without file", func(t *testing.T) {
		t.Setenv("MEDIBOOK_INSTAGRAM_VERIFY_TOKEN", "hub-token")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, "hub-token", cfg.Instagram.VerifyToken)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0600))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.Telegram.BotToken = "123:abc"
		cfg.Telegram.AdminChatIDs = []int64{42}
		cfg.Instagram.VerifyToken = "hub"

		require.NoError(t, NewLoader(configPath).Save(cfg))

		info, err := os.Stat(configPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		loaded, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "123:abc", loaded.Telegram.BotToken)
		assert.Equal(t, []int64{42}, loaded.Telegram.AdminChatIDs)
		assert.Equal(t, "hub", loaded.Instagram.VerifyToken)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		require.NoError(t, NewLoader(configPath).Save(DefaultConfig()))

		_, err := os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		assert.Equal(t, "/custom/path/config.json", NewLoader("/custom/path/config.json").GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		path := NewLoader("").GetConfigPath()
		assert.Contains(t, path, filepath.Join(".medibook", "medibook.json"))
	})
}
