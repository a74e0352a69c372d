package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// Store drivers.
const (
	StoreBolt   = "bolt"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Channel drivers.
const (
	ChannelLocal = "local"
	ChannelNATS  = "nats"
)

// Agent holds the operator agent settings, read from AUCTION_* variables.
type Agent struct {
	Server   ServerConfig
	Store    StoreConfig
	Channel  ChannelConfig
	Relay    RelayClientConfig
	SaleSink SaleSinkConfig
	Files    FilesConfig
	Log      LogConfig
}

type FilesConfig struct {
	// RosterPath points at a YAML roster; empty uses the built-in roster.
	RosterPath string `envconfig:"ROSTER_PATH"`
	// ActionLogPath is the SQLite file for the action history; empty disables it.
	ActionLogPath string `envconfig:"ACTION_LOG_PATH" default:"data/actions.db"`
}

type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"bolt"`
	Path   string `envconfig:"STORE_PATH" default:"data/auction.db"`
}

type ChannelConfig struct {
	Driver  string `envconfig:"CHANNEL_DRIVER" default:"local"`
	Name    string `envconfig:"CHANNEL_NAME" default:"auction_sync"`
	NATSURL string `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222"`
}

// RelayClientConfig configures the sync client. An empty URL runs the agent offline.
type RelayClientConfig struct {
	URL  string `envconfig:"RELAY_URL"`
	Room string `envconfig:"RELAY_ROOM" default:"main"`
}

type SaleSinkConfig struct {
	URL     string        `envconfig:"SALE_SINK_URL"`
	Timeout time.Duration `envconfig:"SALE_SINK_TIMEOUT" default:"5s"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// Relay holds the relay server settings, read from RELAY_* variables.
type Relay struct {
	Server    RelayServerConfig
	WebSocket WebSocketConfig
	Log       LogConfig
}

type RelayServerConfig struct {
	Port            string        `envconfig:"PORT" default:"3001"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type WebSocketConfig struct {
	MaxMessageSize int64         `envconfig:"MAX_MESSAGE_SIZE" default:"1048576"`
	PingInterval   time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
}

// LoadAgent reads the agent configuration from the environment.
func LoadAgent() (*Agent, error) {
	cfg := &Agent{}
	sections := []any{&cfg.Server, &cfg.Store, &cfg.Channel, &cfg.Relay, &cfg.SaleSink, &cfg.Files, &cfg.Log}
	for _, section := range sections {
		if err := envconfig.Process("AUCTION", section); err != nil {
			return nil, fmt.Errorf("failed to process agent config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers.
func (c *Agent) Validate() error {
	switch c.Store.Driver {
	case StoreBolt, StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store driver %q requires AUCTION_STORE_PATH", c.Store.Driver)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Channel.Driver {
	case ChannelLocal:
	case ChannelNATS:
		if c.Channel.NATSURL == "" {
			return fmt.Errorf("channel driver nats requires AUCTION_NATS_URL")
		}
	default:
		return fmt.Errorf("unknown channel driver %q", c.Channel.Driver)
	}
	if strings.TrimSpace(c.Channel.Name) == "" {
		return fmt.Errorf("channel name must not be empty")
	}
	return nil
}

// LoadRelay reads the relay configuration from the environment.
func LoadRelay() (*Relay, error) {
	cfg := &Relay{}
	for _, section := range []any{&cfg.Server, &cfg.WebSocket, &cfg.Log} {
		if err := envconfig.Process("RELAY", section); err != nil {
			return nil, fmt.Errorf("failed to process relay config: %w", err)
		}
	}
	if cfg.WebSocket.MaxMessageSize <= 0 {
		return nil, fmt.Errorf("RELAY_MAX_MESSAGE_SIZE must be positive")
	}
	if cfg.WebSocket.PingInterval <= 0 {
		return nil, fmt.Errorf("RELAY_PING_INTERVAL must be positive")
	}
	return cfg, nil
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
