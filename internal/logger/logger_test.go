package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		environment string
		wantErr     bool
		enabled     zapcore.Level
		disabled    zapcore.Level
	}{
		{name: "development debug", level: "debug", environment: "development", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{name: "production info", level: "info", environment: "production", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{name: "warn level", level: "warn", environment: "production", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{name: "invalid level", level: "loud", environment: "development", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.level, tt.environment)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.enabled))
			assert.False(t, log.Core().Enabled(tt.disabled))
		})
	}
}
