package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_SECRET", "test-secret-key-for-testing")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":4001", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "test-secret-key-for-testing", cfg.AppSecret)
	assert.Equal(t, "gochat.db", cfg.DBPath)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Equal(t, 54*time.Second, cfg.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.PongWait)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.TLSEnabled())
	assert.True(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_SECRET", "")
	t.Setenv("JWT_SECRET", "fallback-secret")
	t.Setenv("PORT", "8080")
	t.Setenv("ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, http://localhost:3000 ,")
	t.Setenv("WS_SEND_BUFFER", "32")
	t.Setenv("STORAGE_TIMEOUT", "250ms")
	t.Setenv("WS_EVENT_BURST", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fallback-secret", cfg.AppSecret)
	assert.Equal(t, ":8080", cfg.Port)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://chat.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 32, cfg.SendBufferSize)
	assert.Equal(t, 250*time.Millisecond, cfg.StorageTimeout)
	assert.Equal(t, 20, cfg.EventBurst)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AppSecret:       "secret",
			MaxMessageSize:  4096,
			SendBufferSize:  256,
			PingInterval:    54 * time.Second,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
			EventsPerSecond: 10,
			EventBurst:      20,
			HandshakeRPS:    5,
			HandshakeBurst:  10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.AppSecret = "" }, wantErr: "APP_SECRET"},
		{name: "zero message size", mutate: func(c *Config) { c.MaxMessageSize = 0 }, wantErr: "WS_MAX_MESSAGE_SIZE"},
		{name: "negative send buffer", mutate: func(c *Config) { c.SendBufferSize = -1 }, wantErr: "WS_SEND_BUFFER"},
		{name: "ping not shorter than pong", mutate: func(c *Config) { c.PingInterval = c.PongWait }, wantErr: "WS_PING_INTERVAL"},
		{name: "zero event rate", mutate: func(c *Config) { c.EventsPerSecond = 0 }, wantErr: "WS_EVENTS_PER_SECOND"},
		{name: "zero handshake burst", mutate: func(c *Config) { c.HandshakeBurst = 0 }, wantErr: "HANDSHAKE_RPS"},
		{name: "cert without key", mutate: func(c *Config) { c.TLSCertFile = "cert.pem" }, wantErr: "TLS_CERT_FILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
