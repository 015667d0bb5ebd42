package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewWithCore(core)
	ctx := context.Background()

	l.Debug(ctx, "hidden")
	l.Info(ctx, "Bot started", map[string]interface{}{"botID": "a"})
	l.Warn(ctx, "slow tick")
	l.Error(ctx, errors.New("boom"), "tick failed", map[string]interface{}{"botID": "a"})

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, "Bot started", entries[0].Message)
	assert.Equal(t, "a", entries[0].ContextMap()["botID"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	l := New(Config{Level: "info", Output: "file", File: path, MaxSizeMB: 1})

	l.Info(context.Background(), "written to file")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}
