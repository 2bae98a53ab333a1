package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/harun/medibook/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := executeCommand(t, "serve", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "Run the medibook daemon in the foreground")
	})

	t.Run("refuses when already running", func(t *testing.T) {
		path, dataDir := writeConfig(t, map[string]interface{}{
			"telegram": map[string]interface{}{"bot_token": "123456789:ABCdefGHIjklMNOpqrsTUVwxyz0123456789"},
		})
		pidFile := daemon.PIDFilePath(dataDir)
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))

		_, err := executeCommand(t, "serve", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already running")
	})

	t.Run("rejects config without channels", func(t *testing.T) {
		path, _ := writeConfig(t, map[string]interface{}{
			"logging": map[string]interface{}{"console": false},
		})

		_, err := executeCommand(t, "serve", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no channel configured")
	})
}

func TestLoadConfigLogLevelOverride(t *testing.T) {
	path, dataDir := writeConfig(t, map[string]interface{}{
		"logging": map[string]interface{}{"level": "warn"},
	})

	resetFlags(rootCmd)
	cfgFile = path

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, dataDir, cfg.DataDir)

	require.NoError(t, rootCmd.PersistentFlags().Set("log-level", "debug"))
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	resetFlags(rootCmd)
}

func TestGetPIDFilePath(t *testing.T) {
	path, dataDir := writeConfig(t, map[string]interface{}{})

	resetFlags(rootCmd)
	cfgFile = path
	defer resetFlags(rootCmd)

	assert.Equal(t, filepath.Join(dataDir, "medibook.pid"), getPIDFilePath())
}

func TestIsRunning(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("no pid file", func(t *testing.T) {
		assert.False(t, isRunning(filepath.Join(tmpDir, "nonexistent.pid")))
	})

	t.Run("invalid pid file", func(t *testing.T) {
		pidFile := filepath.Join(tmpDir, "invalid.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("invalid"), 0644))
		assert.False(t, isRunning(pidFile))
	})

	t.Run("own pid", func(t *testing.T) {
		pidFile := filepath.Join(tmpDir, "self.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))
		assert.True(t, isRunning(pidFile))
	})
}
