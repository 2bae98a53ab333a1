package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	input := strings.Join([]string{
		"bad-token",                          // rejected, asked again
		"123456789:ABCdef",                   // telegram token
		"1001, 1002",                         // admin chats
		"AC0123456789abcdef0123456789abcdef", // twilio sid
		"twilio-secret",                      // auth token
		"5550001111",                         // rejected, asked again
		"+15550001111",                       // sender
		"",                                   // skip instagram
		"debug",                              // log level
	}, "\n") + "\n"

	var out bytes.Buffer
	cfg, err := newWizard(strings.NewReader(input), &out).Run()

	require.NoError(t, err)
	assert.Equal(t, "123456789:ABCdef", cfg.Telegram.BotToken)
	assert.Equal(t, []int64{1001, 1002}, cfg.Telegram.AdminChatIDs)
	assert.Equal(t, "twilio-secret", cfg.WhatsApp.AuthToken)
	assert.Equal(t, "+15550001111", cfg.WhatsApp.FromNumber)
	assert.Empty(t, cfg.Instagram.PageAccessToken)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Contains(t, out.String(), "invalid Telegram bot token format")
	assert.NoError(t, cfg.Validate())
}

func TestWizardRequiresChannel(t *testing.T) {
	_, err := newWizard(strings.NewReader("\n\n\n"), &bytes.Buffer{}).Run()
	assert.Error(t, err)
}

func TestParseChatIDs(t *testing.T) {
	ids, err := parseChatIDs(" 1, -100200 ,,3")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -100200, 3}, ids)

	_, err = parseChatIDs("abc")
	assert.Error(t, err)
}
