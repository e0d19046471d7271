package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "id123")
	assert.Equal(t, "id123", GetTraceID(ctx))
	assert.Empty(t, GetTraceID(context.Background()))

	wrongType := context.WithValue(context.Background(), traceIDKey, 42)
	assert.Empty(t, GetTraceID(wrongType))
}

func TestCtxError_IncludesErrorAndTraceID(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug")
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))) })

	CtxError(WithTraceID(context.Background(), "req-error"), "collection failed", errors.New("rail down"))

	out := buf.String()
	assert.Contains(t, out, `"error":"rail down"`)
	assert.Contains(t, out, `"trace_id":"req-error"`)
	assert.Contains(t, out, `"msg":"collection failed"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn")

	CtxInfo(context.Background(), "hidden")
	CtxWarn(context.Background(), "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
