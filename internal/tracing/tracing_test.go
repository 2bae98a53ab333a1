package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestID(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, &TraceContext{}, FromContext(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithChannel(ctx, "whatsapp")
	ctx = WithUserID(ctx, 42)

	assert.Equal(t, &TraceContext{TraceID: "trace-1", RequestID: "req-1", Channel: "whatsapp", UserID: 42}, FromContext(ctx))
}

func TestNewContextPartial(t *testing.T) {
	ctx := NewContext(context.Background(), &TraceContext{RequestID: "req-2"})
	assert.Equal(t, "req-2", GetRequestID(ctx))
	assert.Empty(t, GetTraceID(ctx))
	assert.Zero(t, GetUserID(ctx))
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background())
	assert.NotEmpty(t, GetTraceID(ctx))
	assert.NotEmpty(t, GetRequestID(ctx))
}

func TestDetachSurvivesCancel(t *testing.T) {
	parent, cancel := context.WithCancel(WithRequestID(context.Background(), "req-3"))
	detached := Detach(parent)
	cancel()

	assert.Error(t, parent.Err())
	assert.NoError(t, detached.Err())
	assert.Equal(t, "req-3", GetRequestID(detached))
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithRequestID(WithUserID(context.Background(), 7), "req-4")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-4", line["request_id"])
	assert.Equal(t, float64(7), line["user_id"])
	assert.NotContains(t, line, "trace_id")
}

func TestStartSpan(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("medibook-test", "test", 1))

	ctx, span := StartSpan(context.Background(), "unit")
	assert.NotEmpty(t, GetTraceID(ctx))
	EndSpan(span, errors.New("boom"))

	ctx, span = StartSpan(WithTraceID(context.Background(), "fixed"), "unit")
	assert.Equal(t, "fixed", GetTraceID(ctx))
	EndSpan(span, nil)
}
