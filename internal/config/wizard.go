package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard on stdin/stdout
func NewWizard() *Wizard {
	return newWizard(os.Stdin, os.Stdout)
}

func newWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for channel credentials and returns the resulting config.
func (w *Wizard) Run() (*Config, error) {
	w.println("=== medibook configuration ===")
	w.println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Telegram
	w.println("Telegram (press Enter to skip):")
	for {
		token, err := w.ask("Bot token: ")
		if err != nil {
			return nil, err
		}
		if token == "" {
			break
		}
		if err := validator.ValidateTelegramToken(token); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.Telegram.BotToken = token
		break
	}

	if cfg.Telegram.BotToken != "" {
		for {
			raw, err := w.ask("Admin chat ids (comma separated): ")
			if err != nil {
				return nil, err
			}
			ids, err := parseChatIDs(raw)
			if err != nil {
				w.printf("Error: %v\n", err)
				continue
			}
			cfg.Telegram.AdminChatIDs = ids
			break
		}
	}
	w.println()

	// WhatsApp
	w.println("WhatsApp via Twilio (press Enter to skip):")
	for {
		sid, err := w.ask("Account SID: ")
		if err != nil {
			return nil, err
		}
		if sid == "" {
			break
		}
		if err := validator.ValidateTwilioAccountSID(sid); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.WhatsApp.AccountSID = sid
		break
	}

	if cfg.WhatsApp.AccountSID != "" {
		token, err := w.ask("Auth token: ")
		if err != nil {
			return nil, err
		}
		cfg.WhatsApp.AuthToken = token

		for {
			from, err := w.ask("Sender number (E.164): ")
			if err != nil {
				return nil, err
			}
			if err := validator.ValidatePhoneNumber(from); err != nil {
				w.printf("Error: %v\n", err)
				continue
			}
			cfg.WhatsApp.FromNumber = from
			break
		}
	}
	w.println()

	// Instagram
	w.println("Instagram (press Enter to skip):")
	pageToken, err := w.ask("Page access token: ")
	if err != nil {
		return nil, err
	}
	if pageToken != "" {
		cfg.Instagram.PageAccessToken = pageToken
		if cfg.Instagram.AppSecret, err = w.ask("App secret: "); err != nil {
			return nil, err
		}
		if cfg.Instagram.VerifyToken, err = w.ask("Webhook verify token: "); err != nil {
			return nil, err
		}
	}
	w.println()

	if len(cfg.Channels()) == 0 {
		return nil, fmt.Errorf("at least one channel is required")
	}

	// Log Level
	w.println("Logging:")
	level, err := w.ask("Log level (debug/info/warn/error) [info]: ")
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			w.printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	w.println()
	w.println("Configuration complete!")

	return cfg, nil
}

func parseChatIDs(raw string) ([]int64, error) {
	ids := []int64{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (w *Wizard) ask(prompt string) (string, error) {
	fmt.Fprint(w.out, prompt)
	return w.readLine()
}

func (w *Wizard) println(a ...interface{}) {
	fmt.Fprintln(w.out, a...)
}

func (w *Wizard) printf(format string, a ...interface{}) {
	fmt.Fprintf(w.out, format, a...)
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
