package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]LogLevel{
		"debug":     LevelDebug,
		"INFO":      LevelInfo,
		"WaRn":      LevelWarn,
		"warning":   LevelWarn,
		"error":     LevelError,
		"fatal":     LevelFatal,
		"  debug  ": LevelDebug,
		"verbose":   LevelInfo,
		"":          LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(input), "input %q", input)
	}
}

func TestLevelNamesAndZapMapping(t *testing.T) {
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "INFO", LogLevel(42).String())
	assert.Equal(t, zapcore.DebugLevel, LevelDebug.zapLevel())
	assert.Equal(t, zapcore.FatalLevel, LevelFatal.zapLevel())
	assert.Equal(t, zapcore.InfoLevel, LogLevel(42).zapLevel())
}

func TestGlobalHelpersUseSwappedLogger(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	logger := newLogger(LevelError, zapcore.AddSync(&buf))
	SetLogger(logger)

	Warn("dropped %s", "warning")
	Error("kept %s", "error")
	logger.SetLevel(LevelDebug)
	Debug("debug after %s", "SetLevel")

	out := buf.String()
	assert.NotContains(t, out, "dropped warning")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "kept error")
	assert.Contains(t, out, "debug after SetLevel")
	assert.Same(t, logger, GetLogger())
}
