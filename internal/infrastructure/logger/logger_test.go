package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erp/inventory/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_RejectsInvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "chatty", Output: "stdout"})
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.log")
	log, err := New(&Config{Level: "info", Format: "json", Output: path, Service: "inventory", Env: "test"})
	require.NoError(t, err)

	log.Info("Stock adjusted")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `"msg":"Stock adjusted"`)
	assert.Contains(t, line, `"service":"inventory"`)
	assert.Contains(t, line, `"env":"test"`)
}

func TestNew_UnwritableOutput(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open log output")
}

func TestNew_TeesExtraCores(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	log, err := New(&Config{Level: "error", Output: "stderr"}, core, nil)
	require.NoError(t, err)

	log.Debug("reserved")
	assert.Equal(t, 1, recorded.FilterMessage("reserved").Len(), "extra core keeps its own level")
}

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		App: config.AppConfig{Name: "inventory", Env: "production"},
		Log: config.LogConfig{Level: "warn", Format: "json", Output: "stdout"},
	}
	got := FromAppConfig(cfg)
	assert.Equal(t, &Config{Level: "warn", Format: "json", Output: "stdout", Service: "inventory", Env: "production"}, got)
}

func TestNewEncoder(t *testing.T) {
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Message: "hello"}

	buf, err := newEncoder("json").EncodeEntry(entry, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	buf, err = newEncoder("console").EncodeEntry(entry, nil)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(buf.String(), "{"))
}
