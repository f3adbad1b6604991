package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Store backends for room metadata
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the gateway's runtime configuration. Values come from an
// optional YAML file and are then overridden by environment variables.
type Config struct {
	Port      string          `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	RoomStore string          `yaml:"room_store"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	Reaper    ReaperConfig    `yaml:"reaper"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	CORS      CORSConfig      `yaml:"cors"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// NATSConfig configures the room event publisher. An empty URL disables it.
type NATSConfig struct {
	URL        string `yaml:"url"`
	StreamName string `yaml:"stream"`
	Subject    string `yaml:"subject_prefix"`
}

type ReaperConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Threshold time.Duration `yaml:"threshold"`
}

type WebSocketConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
	MessageRate    int           `yaml:"message_rate"` // frames per second per connection
	MessageBurst   int           `yaml:"message_burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:      "8081",
		LogLevel:  "info",
		RoomStore: StoreMemory,
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "pokerroom",
			SSLMode:  "disable",
		},
		NATS: NATSConfig{
			StreamName: "ROOM_EVENTS",
			Subject:    "rooms.events",
		},
		Reaper: ReaperConfig{
			Interval:  30 * time.Second,
			Threshold: 60 * time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 4096,
			SendBuffer:     256,
			MessageRate:    20,
			MessageBurst:   40,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads the YAML file at path, if it exists, and applies environment
// overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("GATEWAY_PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.RoomStore = strings.ToLower(getEnv("ROOM_STORE", c.RoomStore))

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)

	c.Reaper.Interval = getEnvAsDuration("REAP_INTERVAL", c.Reaper.Interval)
	c.Reaper.Threshold = getEnvAsDuration("REAP_THRESHOLD", c.Reaper.Threshold)

	c.WebSocket.ReadTimeout = getEnvAsDuration("WS_READ_TIMEOUT", c.WebSocket.ReadTimeout)
	c.WebSocket.WriteTimeout = getEnvAsDuration("WS_WRITE_TIMEOUT", c.WebSocket.WriteTimeout)
	c.WebSocket.PingInterval = getEnvAsDuration("WS_PING_INTERVAL", c.WebSocket.PingInterval)
	c.WebSocket.MessageRate = getEnvAsInt("WS_MESSAGE_RATE", c.WebSocket.MessageRate)
	c.WebSocket.MessageBurst = getEnvAsInt("WS_MESSAGE_BURST", c.WebSocket.MessageBurst)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}
}

// Validate rejects settings the gateway cannot run with.
func (c Config) Validate() error {
	switch c.RoomStore {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown room store %q", c.RoomStore)
	}
	if c.Reaper.Interval <= 0 || c.Reaper.Threshold <= 0 {
		return fmt.Errorf("reaper interval and threshold must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return fmt.Errorf("websocket ping interval must be shorter than the read timeout")
	}
	if c.WebSocket.MessageRate > 0 && c.WebSocket.MessageBurst <= 0 {
		return fmt.Errorf("websocket message burst must be positive when a rate is set")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Level returns the configured zerolog level.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// DSN returns the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// DatabaseFromEnv reads DB_* environment variables on top of the defaults.
func DatabaseFromEnv() DatabaseConfig {
	cfg := Default()
	cfg.applyEnv()
	return cfg.Database
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
