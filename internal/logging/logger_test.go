package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(&Config{
		Level:   level,
		Format:  "text",
		Output:  &buf,
		Sync:    true,
		NoColor: true,
	}), &buf
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{"default config", nil},
		{"json format", &Config{Level: LevelInfo, Format: "json", Output: &bytes.Buffer{}, Sync: true}},
		{"text format", &Config{Level: LevelDebug, Format: "text", Output: &bytes.Buffer{}}},
		{"nil output", &Config{Level: LevelWarn, Sync: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, NewLogger(tt.config))
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"bogus": LevelInfo,
		"":      LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestLoggerWithEngine(t *testing.T) {
	logger, buf := newBufLogger(LevelDebug)

	logger.WithEngine("libaio", 32).Info("engine started")

	out := buf.String()
	assert.Contains(t, out, "engine started")
	assert.Contains(t, out, "backend=libaio")
	assert.Contains(t, out, "depth=32")
}

func TestLoggerWithRequest(t *testing.T) {
	logger, buf := newBufLogger(LevelDebug)

	logger.WithRequest(7, "read").Debug("prepared")

	out := buf.String()
	assert.Contains(t, out, "index=7")
	assert.Contains(t, out, "dir=read")
}

func TestLoggerWithError(t *testing.T) {
	logger, buf := newBufLogger(LevelDebug)

	logger.WithError(errors.New("submit failed")).Error("commit aborted")

	assert.Contains(t, buf.String(), "submit failed")
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufLogger(LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden too")
	assert.Empty(t, buf.String())
	assert.False(t, logger.Enabled(LevelDebug))
	assert.True(t, logger.Enabled(LevelError))

	logger.Warn("backpressure", "inflight", 3)
	assert.Contains(t, buf.String(), "inflight=3")
}

func TestBatchAndCompletion(t *testing.T) {
	logger, buf := newBufLogger(LevelDebug)

	logger.Batch(2, 4, 3)
	out := buf.String()
	assert.Contains(t, out, "submitted batch")
	assert.Contains(t, out, "submitted=3")

	buf.Reset()
	logger.Completion("write", 8192, 4096, 150*time.Microsecond)
	out = buf.String()
	assert.Contains(t, out, "offset=8192")
	assert.Contains(t, out, "latency_us=150")
}

func TestGlobalLoggerFunctions(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	logger, buf := newBufLogger(LevelDebug)
	SetDefault(logger)

	Debug("debug message", "key", "value")
	require.Contains(t, buf.String(), "key=value")

	buf.Reset()
	Info("info message")
	assert.Contains(t, buf.String(), "info message")

	buf.Reset()
	Warn("warning message")
	assert.Contains(t, buf.String(), "warning message")

	buf.Reset()
	Error("error message")
	assert.Contains(t, buf.String(), "error message")
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	assert.False(t, l.Enabled(LevelError))
}
