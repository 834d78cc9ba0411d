package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Options{Level: "info", Format: FormatJSON, Output: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("job completed", zap.String("job_id", "job-1"))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "job completed", entry["msg"])
	assert.Equal(t, "job-1", entry["job_id"])
	assert.Equal(t, "goextract", entry["logger"])
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Options{Level: "debug", Output: &buf})
	require.NoError(t, err)

	logger.Debug("polling", zap.Int("attempt", 2))
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "polling")
}

func TestNewLogger_BadFormat(t *testing.T) {
	_, err := NewLogger(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	t.Cleanup(Replace(L()))

	var buf bytes.Buffer
	logger, err := Init(Options{Level: "warn", Format: FormatJSON, Output: &buf})
	require.NoError(t, err)
	assert.Same(t, logger, L())

	L().Warn("installed")
	assert.Contains(t, buf.String(), "installed")
}

func TestReplace(t *testing.T) {
	prev := L()
	custom := zap.NewExample()

	restore := Replace(custom)
	assert.Same(t, custom, L())
	restore()
	assert.Same(t, prev, L())

	restore = Replace(nil)
	assert.NotNil(t, L())
	restore()
	assert.Same(t, prev, L())
}
