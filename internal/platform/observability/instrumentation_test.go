package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpan_LogsWhenEnabled(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	shutdown, err := Setup(context.Background(), Config{Enabled: true}, logger)
	require.NoError(t, err)
	defer shutdown(context.Background())

	assert.True(t, Enabled())

	_, end := StartSpan(context.Background(), "inference", "classify")
	end(errors.New("view failed"))
	RecordMetric(context.Background(), "http.requests", 1, map[string]string{"path": "/api/predict", "method": "POST"})

	out := buf.String()
	assert.Contains(t, out, "obs span start")
	assert.Contains(t, out, "obs span end")
	assert.Contains(t, out, "view failed")
	assert.Contains(t, out, "metric=http.requests")
}

func TestStartSpan_SilentWhenDisabled(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	shutdown, err := Setup(context.Background(), Config{Enabled: false}, logger)
	require.NoError(t, err)
	defer shutdown(context.Background())
	buf.Reset()

	_, end := StartSpan(context.Background(), "inference", "classify")
	end(nil)
	RecordMetric(context.Background(), "noop", 1, nil)

	assert.Empty(t, buf.String())
}
