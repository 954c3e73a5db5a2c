package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"invalid", LevelInfo}, // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestFileLoggerFiltersByLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "vtsclient.log")

	l, err := New(LevelInfo, logPath, "mux")
	require.NoError(t, err)

	l.Info("frame dispatched")
	l.Debug("should not appear")
	require.NoError(t, l.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)

	assert.Contains(t, string(content), "frame dispatched")
	assert.Contains(t, string(content), "[mux]")
	assert.NotContains(t, string(content), "should not appear")
}

func TestLoggerWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelDebug, &buf, "client")

	l.WithPrefix("auth").Warn("handshake denied")

	assert.Contains(t, buf.String(), "[client:auth]")
	assert.Contains(t, buf.String(), "[WARN]")
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelInfo, &buf, "")

	l.Debug("debug1")
	l.SetLevel(LevelDebug)
	l.Debug("debug2")

	assert.NotContains(t, buf.String(), "debug1")
	assert.Contains(t, buf.String(), "debug2")
}

func TestLoggerDisabled(t *testing.T) {
	l, err := New(LevelNone, "", "test")
	require.NoError(t, err)

	// None of these should panic.
	l.Debug("debug")
	l.Error("error")
	assert.NoError(t, l.Close())
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	SetGlobal(NewWriter(LevelDebug, &buf, ""))
	t.Cleanup(func() { SetGlobal(nil) })

	Info("connected to %s", "ws://localhost:8001")
	assert.Contains(t, buf.String(), "connected to ws://localhost:8001")

	SetGlobal(nil)
	require.NotNil(t, Global())
	Error("dropped")
}

func TestSlogHandlerForwardsAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelDebug, &buf, "")

	slog.New(NewSlogHandler(l)).WithGroup("req").Info("sent", "id", "7")

	assert.Contains(t, buf.String(), "sent req.id=7")
}
