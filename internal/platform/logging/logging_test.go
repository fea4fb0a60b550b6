package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level string) (*Logger, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	console := &bytes.Buffer{}
	logger, err := New(Config{Level: level, Dir: dir, Filename: "test.log", Console: console})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger, console, filepath.Join(dir, "test.log")
}

func TestNew_CreatesLogFile(t *testing.T) {
	_, _, path := newTestLogger(t, "info")

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestLogger_WritesFileAndConsole(t *testing.T) {
	logger, console, path := newTestLogger(t, "info")

	logger.Info("model loaded from %s", "weights.tflite")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "model loaded from weights.tflite")
	assert.Contains(t, console.String(), "model loaded from weights.tflite")
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, console, path := newTestLogger(t, "warn")

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "info line")
	assert.NotContains(t, string(content), "debug line")
	assert.Contains(t, string(content), "warn line")
	assert.NotContains(t, console.String(), "info line")
}

func TestLogger_DebugEnabled(t *testing.T) {
	logger, console, _ := newTestLogger(t, "DEBUG")

	logger.Debug("anchor count %d", 12)

	assert.Contains(t, console.String(), "anchor count 12")
}

func TestLogger_FieldMap(t *testing.T) {
	logger, _, path := newTestLogger(t, "info")

	logger.Info("classified", map[string]interface{}{"status": "DETECTED", "views": 5})

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"status":"DETECTED"`)
	assert.Contains(t, string(content), `"views":5`)
}

func TestLogger_TagHelpers(t *testing.T) {
	logger, console, _ := newTestLogger(t, "debug")

	logger.InfoTag("TTA", "aggregated %d views", 5)
	logger.WarnTag("QUALITY", "image too dark")
	logger.ErrorTag("MODEL", "invoke failed")
	logger.DebugTag("NMS", "kept %d", 3)

	out := console.String()
	assert.Contains(t, out, "[TTA] aggregated 5 views")
	assert.Contains(t, out, "[QUALITY] image too dark")
	assert.Contains(t, out, "[MODEL] invoke failed")
	assert.Contains(t, out, "[NMS] kept 3")
}

func TestFormatLog(t *testing.T) {
	tests := []struct {
		tag, msg, expected string
	}{
		{"TTA", "done", "[TTA] done"},
		{"", "plain", "plain"},
		{"GUARD", "[GUARD] already tagged", "[GUARD] already tagged"},
		{" HTTP ", " padded ", "[HTTP] padded"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatLog(tt.tag, tt.msg))
	}
}

func TestLogger_ConsoleOnly(t *testing.T) {
	console := &bytes.Buffer{}
	logger, err := New(Config{Level: "info", Console: console})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info("no file sink")
	assert.Contains(t, console.String(), "no file sink")
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Error("dropped")
	logger.InfoTag("TTA", "dropped")
	assert.NotNil(t, logger.Slog())
	assert.NoError(t, logger.Close())
}

func TestLogger_RotateAndClean(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "info", Dir: dir, Filename: "server.log", Console: &bytes.Buffer{}})
	require.NoError(t, err)
	defer logger.Close()

	stale := filepath.Join(dir, "server-2000-01-01.log")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	logger.Info("before rotation")
	previous := logger.currentDate
	logger.checkAndRotate(time.Now().AddDate(0, 0, 1))

	_, err = os.Stat(filepath.Join(dir, "server-"+previous+".log"))
	assert.NoError(t, err, "current file should be archived")
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale archive should be removed")

	logger.Info("after rotation")
	content, err := os.ReadFile(filepath.Join(dir, "server.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "after rotation"))
	assert.False(t, strings.Contains(string(content), "before rotation"))
}

func TestLogger_CloseTwice(t *testing.T) {
	logger, _, _ := newTestLogger(t, "info")
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}
