package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{
			name:    "default config",
			cfg:     DefaultLogConfig(),
			wantErr: false,
		},
		{
			name:    "console format to stderr",
			cfg:     LogConfig{Level: "debug", Format: "console", Output: "stderr"},
			wantErr: false,
		},
		{
			name:    "invalid level",
			cfg:     LogConfig{Level: "shouty", Format: "json"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("hello", String("key", "value"))
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	require.NotNil(t, logger)

	// All methods must be safe on the nop logger.
	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
	assert.NoError(t, logger.Sync())

	withFields := logger.With(String("component", "test"))
	require.NotNil(t, withFields)

	withCtx := logger.WithContext(ContextWithRequestID(context.Background(), "req-1"))
	require.NotNil(t, withCtx)
}
