package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/harun/medibook/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := executeCommand(t, "status", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "status")
	})

	t.Run("stopped", func(t *testing.T) {
		path, _ := writeConfig(t, map[string]interface{}{})

		output, err := executeCommand(t, "status", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, output, "Status: stopped")
	})

	t.Run("running without health endpoint", func(t *testing.T) {
		path, dataDir := writeConfig(t, map[string]interface{}{
			"webhook": map[string]interface{}{"host": "127.0.0.1", "port": freePort(t)},
		})
		require.NoError(t, os.WriteFile(daemon.PIDFilePath(dataDir), []byte(strconv.Itoa(os.Getpid())), 0644))

		output, err := executeCommand(t, "status", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, output, "Status: running")
		assert.Contains(t, output, "PID: "+strconv.Itoa(os.Getpid()))
		assert.Contains(t, output, "Health: unreachable")
	})
}

func TestPrintHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","channels":["telegram","whatsapp"],"sessions":3}`))
	}))
	defer srv.Close()

	output := &bytes.Buffer{}
	printHealth(output, srv.URL+"/health")

	assert.Contains(t, output.String(), "Health: ok")
	assert.Contains(t, output.String(), "Channels: telegram, whatsapp")
	assert.Contains(t, output.String(), "Sessions: 3")
}

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080/health", healthURL("0.0.0.0", 8080))
	assert.Equal(t, "http://127.0.0.1:9000/health", healthURL("", 9000))
	assert.Equal(t, "http://10.0.0.5:8080/health", healthURL("10.0.0.5", 8080))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
