package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Auth
	AppSecret string

	// Storage
	DBPath         string
	StorageTimeout time.Duration
	BreakerMaxFail int
	BreakerTimeout time.Duration

	// Presence mirror
	RedisURL string

	// TLS
	TLSCertFile string
	TLSKeyFile  string

	// WebSocket
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBufferSize  int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	EventsPerSecond int
	EventBurst      int

	// Handshake rate limit
	HandshakeRPS   int
	HandshakeBurst int

	ShutdownTimeout time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	secret := getEnv("APP_SECRET", "")
	if secret == "" {
		secret = getEnv("JWT_SECRET", "")
	}

	cfg := &Config{
		Port:        getEnv("PORT", ":4001"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		AppSecret: secret,

		DBPath:         getEnv("DB_PATH", "gochat.db"),
		StorageTimeout: getEnvDuration("STORAGE_TIMEOUT", 5*time.Second),
		BreakerMaxFail: getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerTimeout: getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		RedisURL: getEnv("REDIS_URL", ""),

		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),

		AllowedOrigins:  getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
		MaxMessageSize:  int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 4096)),
		SendBufferSize:  getEnvInt("WS_SEND_BUFFER", 256),
		PingInterval:    getEnvDuration("WS_PING_INTERVAL", 54*time.Second),
		PongWait:        getEnvDuration("WS_PONG_WAIT", 60*time.Second),
		WriteWait:       getEnvDuration("WS_WRITE_WAIT", 10*time.Second),
		EventsPerSecond: getEnvInt("WS_EVENTS_PER_SECOND", 10),
		EventBurst:      getEnvInt("WS_EVENT_BURST", 20),

		HandshakeRPS:   getEnvInt("HANDSHAKE_RPS", 5),
		HandshakeBurst: getEnvInt("HANDSHAKE_BURST", 10),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AppSecret == "" {
		return errors.New("APP_SECRET is required")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("WS_MAX_MESSAGE_SIZE must be positive")
	}
	if c.SendBufferSize <= 0 {
		return errors.New("WS_SEND_BUFFER must be positive")
	}
	if c.PongWait <= 0 || c.PingInterval <= 0 || c.WriteWait <= 0 {
		return errors.New("websocket timeouts must be positive")
	}
	if c.PingInterval >= c.PongWait {
		return fmt.Errorf("WS_PING_INTERVAL (%s) must be shorter than WS_PONG_WAIT (%s)", c.PingInterval, c.PongWait)
	}
	if c.EventsPerSecond <= 0 || c.EventBurst <= 0 {
		return errors.New("WS_EVENTS_PER_SECOND and WS_EVENT_BURST must be positive")
	}
	if c.HandshakeRPS <= 0 || c.HandshakeBurst <= 0 {
		return errors.New("HANDSHAKE_RPS and HANDSHAKE_BURST must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// TLSEnabled returns true when both certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
