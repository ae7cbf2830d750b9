package logger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		verbosity  int
	}{
		{name: "JSON output mode", jsonOutput: true, verbosity: 0},
		{name: "Console output mode", jsonOutput: false, verbosity: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput, tt.verbosity)
			require.NoError(t, err)
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
			Use(nil)
		})
	}
}

func TestUseAndOrNop(t *testing.T) {
	Use(zaptest.NewLogger(t).Sugar())
	assert.NotNil(t, Logger)

	Use(nil)
	assert.NotNil(t, Logger, "Use(nil) must install a no-op logger")

	assert.NotNil(t, OrNop(nil))
	l := zaptest.NewLogger(t).Sugar()
	assert.Same(t, l, OrNop(l))
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{-1, zapcore.WarnLevel},
		{VerbosityUser, zapcore.WarnLevel},
		{VerbosityInfo, zapcore.InfoLevel},
		{VerbosityDebug, zapcore.DebugLevel},
		{3, zapcore.DebugLevel},
		{10, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(LevelName(tt.verbosity), func(t *testing.T) {
			assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity))
		})
	}

	assert.Equal(t, "warn", LevelName(-5))
	assert.Equal(t, "debug (-vv)", LevelName(7))
}

func TestChildLogger(t *testing.T) {
	Use(zaptest.NewLogger(t).Sugar())
	defer Use(nil)

	child := ChildLogger(ComponentLogger("lookup"), FieldSession, "s")
	assert.NotSame(t, Logger, child)
	assert.NotNil(t, ChildLogger(nil, FieldKey, "k"), "a nil parent yields a usable logger")
}

func TestMinimalEncoder(t *testing.T) {
	enc := newMinimalEncoder()
	ent := zapcore.Entry{
		Level:      zapcore.WarnLevel,
		Time:       time.Date(2024, 3, 1, 13, 4, 35, 0, time.UTC),
		LoggerName: "datasource.lookup",
		Message:    "Loaded record",
	}
	fields := []zapcore.Field{
		zap.String(FieldKey, "A;1"),
		zap.String(FieldDataSet, "common"),
		zap.String(FieldCollection, "Sample"),
		zap.Int64(FieldCount, 3),
		zap.String(FieldHandler, "Describe"),
		zap.String("ignored", "value"),
	}

	buf, err := enc.EncodeEntry(ent, fields)
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "13:04:35")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "d.lookup")
	assert.Contains(t, out, "Loaded record")
	assert.Contains(t, out, "A;1")
	assert.Contains(t, out, "@common")
	assert.Contains(t, out, "Sample")
	assert.Contains(t, out, "3"+colorReset+" docs")
	assert.Contains(t, out, ".Describe")
	assert.NotContains(t, out, "ignored")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestAbbreviateName(t *testing.T) {
	assert.Equal(t, "d.lookup", abbreviateName("datasource.lookup"))
	assert.Equal(t, "docstore", abbreviateName("docstore"))
	assert.Equal(t, ".x", abbreviateName(".x"))
}
