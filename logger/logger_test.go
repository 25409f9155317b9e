package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			require.NoError(t, Initialize(tt.jsonOutput, zapcore.InfoLevel))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)
			assert.Equal(t, zapcore.InfoLevel, Level())

			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Initialize(false, zapcore.WarnLevel))
	defer func() { Logger = zap.NewNop().Sugar() }()

	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.InfoLevel))
	SetLevel(zapcore.DebugLevel)
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
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
		{7, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity), "verbosity %d", tt.verbosity)
	}
	assert.Equal(t, "Info (-v)", LevelName(VerbosityInfo))
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithComponent(ctx, "caption.session")

	assert.Equal(t, []interface{}{
		FieldRequestID, "req-1",
		FieldSessionID, "sess-1",
		FieldComponent, "caption.session",
	}, FieldsFromContext(ctx))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx, base).Infow("caption requested")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].ContextMap()[FieldRequestID])

	// No fields: the base logger is returned unchanged
	assert.Same(t, base, FromContext(context.Background(), base))
}
