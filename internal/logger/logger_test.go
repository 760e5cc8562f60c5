package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestNewAndWith(t *testing.T) {
	l, err := New("debug")
	require.NoError(t, err)
	child := l.With(String("source", "bbc"))
	assert.NotNil(t, child)
	child.Debug("hello", Int("page", 1))
}

func TestNopLogger(t *testing.T) {
	l := NewNop()
	l.Info("ignored")
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.NoError(t, l.Sync())
}
