package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit event categories.
const (
	AuditSecurity = "security" // rejected signatures, failed subscriptions
	AuditState    = "state"    // forced conversation state overwrites
)

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"` // channel name or user id
	Action    string                 `json:"action"`          // e.g. "webhook_signature", "force_transition"
	Status    string                 `json:"status"`          // "success", "rejected"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger appends audit events as JSON lines. Events bypass the
// application log level.
type AuditLogger struct {
	mu     sync.Mutex
	out    zerolog.Logger
	closer io.Closer
}

var (
	auditMu   sync.Mutex
	auditInst *AuditLogger
)

func newAuditLogger(w io.Writer, closer io.Closer) *AuditLogger {
	return &AuditLogger{
		out:    zerolog.New(w).With().Timestamp().Logger(),
		closer: closer,
	}
}

// GetAuditLogger returns the process audit logger. Until InitAuditLogger
// succeeds events go to stderr.
func GetAuditLogger() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst == nil {
		auditInst = newAuditLogger(os.Stderr, nil)
	}
	return auditInst
}

// InitAuditLogger points the process audit logger at path, closing the
// previous file if there was one.
func InitAuditLogger(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	auditMu.Lock()
	prev := auditInst
	auditInst = newAuditLogger(f, f)
	auditMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Record writes event. When ctx carries a sampled span the event is also
// attached to it and its trace id copied into the line.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		event.TraceID = sc.TraceID().String()
		trace.SpanFromContext(ctx).AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.actor", event.Actor),
			attribute.String("audit.status", event.Status),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	line := a.out.Log().
		Str("type", event.Type).
		Str("action", event.Action).
		Str("actor", event.Actor).
		Str("status", event.Status).
		Time("at", event.Timestamp)
	if event.TraceID != "" {
		line = line.Str("trace_id", event.TraceID)
	}
	if len(event.Metadata) > 0 {
		line = line.Interface("metadata", event.Metadata)
	}
	line.Send()
}

// Close releases the audit file. Closing the stderr logger is a no-op.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// RecordSecurityAudit records a rejected or suspicious inbound request.
func RecordSecurityAudit(ctx context.Context, action, actor, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditSecurity,
		Action:   action,
		Actor:    actor,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordStateAudit records state overwrites that skipped transition checks.
func RecordStateAudit(ctx context.Context, action, actor string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditState,
		Action:   action,
		Actor:    actor,
		Status:   "success",
		Metadata: metadata,
	})
}
