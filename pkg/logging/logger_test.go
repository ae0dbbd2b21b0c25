package logging

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerFieldsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", "json")

	l.WithField("command", "ping").WithError(errors.New("boom")).Warn("sync failed")

	out := buf.String()
	require.Contains(t, out, `"msg":"sync failed"`)
	require.Contains(t, out, `"command":"ping"`)
	require.Contains(t, out, `"error":"boom"`)
	require.Contains(t, out, `"level":"WARN"`)
}

func TestWithFieldDoesNotMutateReceiver(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "info", "text")
	_ = base.WithField("scope", "globals")

	base.Info("plain")
	require.NotContains(t, buf.String(), "scope=")
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "text")
	l.Info("hidden")
	l.Debugf("hidden %d", 2)
	require.Empty(t, buf.String())

	l.Errorf("shown %d", 1)
	require.Contains(t, buf.String(), "shown 1")
}

func TestSetupWritesRotatingFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "discordui.log")
	require.NoError(t, Setup(Options{Level: "info", Format: "text", File: file, Output: &buf}))
	t.Cleanup(func() {
		_ = Close()
		GlobalLogger = nil
	})

	WithField("component", "test").Info("hello")
	require.Contains(t, buf.String(), "component=test")
	require.FileExists(t, file)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", ParseLevel("Debug").String())
	require.Equal(t, "WARN", ParseLevel("warning").String())
	require.Equal(t, "INFO", ParseLevel("nonsense").String())
}
