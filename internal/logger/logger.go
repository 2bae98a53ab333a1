package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the process logger shared by the daemon and the CLI.
type Logger struct {
	logger   zerolog.Logger
	file     io.Closer
	redactor *Redactor
}

// Config selects the log sinks and their format.
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path, empty disables the file sink
	Console   bool
	Pretty    bool // human-readable console lines instead of JSON
	Redaction bool // mask bot tokens, account SIDs and phone numbers
	MaxSize   int  // MB before the file is rotated
	MaxAge    int  // days rotated files are kept
	Compress  bool // gzip rotated files
}

// DefaultConfig returns the settings used when the config file has no
// logging section.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}

// New opens the configured sinks and installs the result as log.Logger.
func New(cfg Config) (*Logger, error) {
	out := &Logger{}

	sinks := make([]io.Writer, 0, 2)
	if cfg.Console {
		sinks = append(sinks, consoleSink(cfg.Pretty))
	}
	if cfg.File != "" {
		rw, err := NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, err
		}
		out.file = rw
		sinks = append(sinks, rw)
	}

	var w io.Writer = os.Stdout
	if len(sinks) == 1 {
		w = sinks[0]
	} else if len(sinks) > 1 {
		w = io.MultiWriter(sinks...)
	}

	if cfg.Redaction {
		out.redactor = NewRedactor()
		w = out.redactor.Wrap(w)
	}

	out.logger = zerolog.New(w).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
	log.Logger = out.logger

	return out, nil
}

func consoleSink(pretty bool) io.Writer {
	if !pretty {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

// parseLevel maps an empty or unknown level to info.
func parseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Component returns a child logger tagged with the subsystem name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }

func (l *Logger) Info() *zerolog.Event { return l.logger.Info() }

func (l *Logger) Warn() *zerolog.Event { return l.logger.Warn() }

func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// With starts a child logger context.
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// GetZerolog returns the underlying zerolog.Logger.
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// Close flushes and closes the file sink, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
