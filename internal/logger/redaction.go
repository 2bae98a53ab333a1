package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Redactor redacts channel credentials from logs
type Redactor struct {
	rules []redactionRule
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	r := &Redactor{}

	// Telegram bot tokens, also inside api.telegram.org/bot<token>/ URLs
	r.mustAdd(`\d{8,10}:[a-zA-Z0-9_-]{30,}`, redacted)

	// Twilio account SIDs and API key SIDs
	r.mustAdd(`\b(?:AC|SK)[0-9a-fA-F]{32}\b`, redacted)

	// Meta page access tokens
	r.mustAdd(`EAA[a-zA-Z0-9]{20,}`, redacted)

	// Bearer tokens
	r.mustAdd(`Bearer\s+[a-zA-Z0-9._-]+`, redacted)

	// Graph API query credentials
	r.mustAdd(`(access_token=)[^&\s"]+`, "${1}"+redacted)

	// user:password@ in URLs, e.g. Twilio basic auth
	r.mustAdd(`://[^:/\s]+:[^@/\s]+@`, "://"+redacted+"@")

	// key/value secrets: auth_token, app_secret, verify_token, password, ...
	r.mustAdd(`(?i)("?(?:password|pwd|secret|token)"?\s*[:=]\s*"?)[^\s",&}]+`, "${1}"+redacted)

	return r
}

func (r *Redactor) mustAdd(pattern, replacement string) {
	r.rules = append(r.rules, redactionRule{
		pattern:     regexp.MustCompile(pattern),
		replacement: replacement,
	})
}

// AddPattern adds a custom redaction pattern; matches are replaced whole.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactionRule{pattern: re, replacement: redacted})
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, rule := range r.rules {
		result = rule.pattern.ReplaceAllString(result, rule.replacement)
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

// redactingWriter is an io.Writer that redacts sensitive information
type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat the shorter
// redacted output as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
