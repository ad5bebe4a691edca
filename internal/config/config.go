package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"

	"phasesync/internal/app"
)

// Config holds all relay configuration
type Config struct {
	Server  ServerConfig
	Room    RoomConfig
	Store   StoreConfig
	Logging LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Host           string   `env:"HOST" envDefault:"0.0.0.0"`
	Env            string   `env:"ENV" envDefault:"development"` // "development" or "production"
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// RoomConfig holds room-related configuration
type RoomConfig struct {
	CodeLength      int           `env:"ROOM_CODE_LENGTH" envDefault:"6"`
	MaxParticipants int           `env:"MAX_PARTICIPANTS" envDefault:"32"`
	EventBuffer     int           `env:"ROOM_EVENT_BUFFER" envDefault:"100"`
	StaleTimeout    time.Duration `env:"ROOM_STALE_TIMEOUT" envDefault:"2h"`
	CleanupInterval time.Duration `env:"ROOM_CLEANUP_INTERVAL" envDefault:"10m"`
}

// StoreConfig selects and configures snapshot persistence
type StoreConfig struct {
	Backend       string        `env:"STORE_BACKEND" envDefault:"memory"` // "memory" or "redis"
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string        `env:"REDIS_PREFIX" envDefault:"phasesync"`
	RedisTTL      time.Duration `env:"REDIS_TTL" envDefault:"24h"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return errors.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Room.CodeLength < 4 {
		return errors.Errorf("room code length %d is too short", c.Room.CodeLength)
	}
	if c.Room.MaxParticipants < 1 {
		return errors.Errorf("max participants must be positive, got %d", c.Room.MaxParticipants)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// HubSettings converts the room configuration for the hub
func (c *Config) HubSettings() app.HubSettings {
	return app.HubSettings{
		RoomCodeLength:   c.Room.CodeLength,
		StaleRoomTimeout: c.Room.StaleTimeout,
		CleanupInterval:  c.Room.CleanupInterval,
		Room: app.RoomSettings{
			MaxParticipants: c.Room.MaxParticipants,
			EventBuffer:     c.Room.EventBuffer,
		},
	}
}
