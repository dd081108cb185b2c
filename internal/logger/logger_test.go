package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestFileWriterDefaults(t *testing.T) {
	assert.Nil(t, FileConfig{}.Writer())

	w := FileConfig{Path: filepath.Join(t.TempDir(), "x.log")}.Writer()
	l, ok := w.(*lj.Logger)
	require.True(t, ok)
	assert.Equal(t, DefaultMaxSizeMB, l.MaxSize)
	assert.Equal(t, DefaultMaxBackups, l.MaxBackups)
	assert.Equal(t, DefaultMaxAgeDays, l.MaxAge)
	_ = w.Close()
}

func TestFileWriterOverrides(t *testing.T) {
	w := FileConfig{Path: "x.log", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 30, Compress: true}.Writer()
	l := w.(*lj.Logger)
	assert.Equal(t, 1, l.MaxSize)
	assert.Equal(t, 9, l.MaxBackups)
	assert.Equal(t, 30, l.MaxAge)
	assert.True(t, l.Compress)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extbox.log")
	lv := new(slog.LevelVar)
	log, closer, err := New(Config{Level: "warn", Format: "json", File: FileConfig{Path: path}, LevelVar: lv})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown", "module", "battery")
	lv.Set(slog.LevelDebug)
	log.Debug("now visible")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"module":"battery"`)
	assert.Contains(t, out, "now visible")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, _, err := New(Config{Format: "xml"})
	assert.Error(t, err)
	_, _, err = New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	log := slog.New(h).With("component", "scheduler")
	log.Error("boom", "n", 1)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\033[31mERROR\033[0m  msg=boom"), out)
	assert.Contains(t, out, "component=scheduler")
	assert.NotContains(t, out, "time=")
	assert.NotContains(t, out, "level=")

	_, isColor := log.Handler().(*ColorTextHandler)
	assert.True(t, isColor, "With must keep the color handler")
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.Contains(t, out, "n=1")
}
