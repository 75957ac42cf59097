package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", *DefaultConfig(), false},
		{"zero size", Config{Level: "info"}, true},
		{"bad level", Config{MaxSize: 1, Level: "trace"}, true},
		{"negative age", Config{MaxSize: 1, MaxAge: -1, Level: "info"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := (&Config{Level: "debug", MaxSize: 50}).SetDefaults()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, 50, cfg.MaxSize)
	assert.Equal(t, 3, cfg.MaxBackups)
	assert.Equal(t, 30, cfg.MaxAge)
}

func TestConsoleOmitsTimestamps(t *testing.T) {
	var console bytes.Buffer
	log, err := newWithConsole(&Config{Level: "warn"}, &console)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("Prune incomplete", zap.String("entity", "job:site-A"))
	require.NoError(t, log.Sync())

	assert.True(t, strings.HasPrefix(console.String(), "WARN\tPrune incomplete\t"), "no timestamp or caller: %q", console.String())
	assert.Contains(t, console.String(), `"entity": "job:site-A"`)
	assert.NotContains(t, console.String(), "hidden")
	assert.True(t, log.Core().Enabled(zapcore.ErrorLevel))
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNewWritesConsoleAndFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "confhist.log")
	var console bytes.Buffer

	log, err := newWithConsole(&Config{File: file, Level: "info"}, &console)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("Recorded change")
	require.NoError(t, log.Sync())

	assert.Contains(t, console.String(), "Recorded change")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.True(t, strings.HasPrefix(line, "{"), "file output is JSON: %s", line)
	assert.Contains(t, line, `"msg":"Recorded change"`)
	assert.Contains(t, line, `"logger":"confhist"`)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}
