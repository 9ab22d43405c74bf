package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerHost string `validate:"required"`
	ServerPort string `validate:"required,numeric"`

	// WebSocket relay
	WSPath          string        `validate:"required,startswith=/"`
	DefaultRoom     string        `validate:"required"`
	AllowedOrigins  []string      `validate:"min=1"`
	WriteWait       time.Duration `validate:"gt=0"`
	PongWait        time.Duration `validate:"gt=0"`
	MaxMessageBytes int64         `validate:"gt=0"`

	// Optional session audit store; empty disables it
	DatabaseURL        string
	AuditWorkers       int           `validate:"gte=1"`
	AuditQueueSize     int           `validate:"gte=0"`
	AuditRetention     time.Duration `validate:"gt=0"`
	AuditSweepInterval time.Duration `validate:"gt=0"`

	RoomStatsEnabled bool

	// Observability
	JaegerEndpoint    string
	JaegerSampleRatio float64 `validate:"gte=0,lte=1"`
	LogLevel          string  `validate:"oneof=debug info warn error disabled"`
	LogFormat         string  `validate:"oneof=json console"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		WSPath:          getEnv("WS_PATH", "/ws"),
		DefaultRoom:     getEnv("DEFAULT_ROOM", "default"),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		WriteWait:       getEnvDuration("WS_WRITE_WAIT", 10*time.Second),
		PongWait:        getEnvDuration("WS_PONG_WAIT", 60*time.Second),
		MaxMessageBytes: int64(getEnvInt("WS_MAX_MESSAGE_BYTES", 1<<20)),

		DatabaseURL:        getEnv("DATABASE_URL", ""),
		AuditWorkers:       getEnvInt("AUDIT_WORKERS", 2),
		AuditQueueSize:     getEnvInt("AUDIT_QUEUE_SIZE", 256),
		AuditRetention:     getEnvDuration("AUDIT_RETENTION", 7*24*time.Hour),
		AuditSweepInterval: getEnvDuration("AUDIT_SWEEP_INTERVAL", time.Hour),

		RoomStatsEnabled: getEnvBool("ROOM_STATS_ENABLED", true),

		JaegerEndpoint:    getEnv("JAEGER_ENDPOINT", ""),
		JaegerSampleRatio: getEnvFloat("JAEGER_SAMPLE_RATIO", 1),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.WriteWait >= c.PongWait {
		return fmt.Errorf("invalid config: WS_WRITE_WAIT (%s) must be shorter than WS_PONG_WAIT (%s)", c.WriteWait, c.PongWait)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

// PingPeriod is how often the relay pings idle peers; it must stay below PongWait.
func (c *Config) PingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
