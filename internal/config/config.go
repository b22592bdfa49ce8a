package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is read from the environment. Slice values are separated by ";".
type Config struct {
	ListenAddr      string `env:"LISTEN_ADDR,default=:8090"`
	WSAddr          string `env:"WS_ADDR,default=:8091"`
	WSPath          string `env:"WS_PATH,default=/ws"`
	InternalAPIAddr string `env:"INTERNAL_API_ADDR,default=:9091"`

	RouterWorkers   int `env:"ROUTER_WORKERS,default=32"`
	RouterQueueSize int `env:"ROUTER_QUEUE_SIZE,default=4096"`

	MaxFrameBytes   int           `env:"MAX_FRAME_BYTES,default=1048576"`
	ConnSendQueue   int           `env:"CONN_SEND_QUEUE,default=256"`
	ConnIdleTimeout time.Duration `env:"CONN_IDLE_TIMEOUT,default=5m"`
	MaxSessions     int           `env:"MAX_SESSIONS,default=100000"`

	AuthJWTSecret string `env:"AUTH_JWT_SECRET"`
	AuthJWTIssuer string `env:"AUTH_JWT_ISSUER"`

	DispatcherAddrs           []string      `env:"DISPATCHER_ADDRS"`
	DispatchersFile           string        `env:"DISPATCHERS_FILE"`
	RedisAddr                 string        `env:"REDIS_ADDR"`
	DispatcherRegistryKey     string        `env:"DISPATCHER_REGISTRY_KEY,default=phantom:dispatchers"`
	DispatcherRefreshInterval time.Duration `env:"DISPATCHER_REFRESH_INTERVAL,default=10s"`
	DispatcherSendQueue       int           `env:"DISPATCHER_SEND_QUEUE,default=1024"`
	DispatcherReconnectBase   time.Duration `env:"DISPATCHER_RECONNECT_BASE,default=1s"`
	DispatcherReconnectMax    time.Duration `env:"DISPATCHER_RECONNECT_MAX,default=30s"`
}

// Load decodes the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.DispatcherAddrs = trimAll(cfg.DispatcherAddrs)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch {
	case c.ListenAddr == "" && c.WSAddr == "":
		return errors.New("config: at least one of LISTEN_ADDR or WS_ADDR is required")
	case c.InternalAPIAddr == "":
		return errors.New("config.INTERNAL_API_ADDR: required")
	case !strings.HasPrefix(c.WSPath, "/"):
		return fmt.Errorf("config.WS_PATH: must start with /, got %q", c.WSPath)
	case c.RouterWorkers < 1:
		return fmt.Errorf("config.ROUTER_WORKERS: must be positive, got %d", c.RouterWorkers)
	case c.RouterQueueSize < 1:
		return fmt.Errorf("config.ROUTER_QUEUE_SIZE: must be positive, got %d", c.RouterQueueSize)
	case c.MaxFrameBytes < 1:
		return fmt.Errorf("config.MAX_FRAME_BYTES: must be positive, got %d", c.MaxFrameBytes)
	case c.ConnSendQueue < 1:
		return fmt.Errorf("config.CONN_SEND_QUEUE: must be positive, got %d", c.ConnSendQueue)
	case c.MaxSessions < 1:
		return fmt.Errorf("config.MAX_SESSIONS: must be positive, got %d", c.MaxSessions)
	case c.AuthJWTSecret == "":
		return errors.New("config.AUTH_JWT_SECRET: required")
	case c.DispatcherSendQueue < 1:
		return fmt.Errorf("config.DISPATCHER_SEND_QUEUE: must be positive, got %d", c.DispatcherSendQueue)
	case c.DispatcherReconnectBase <= 0:
		return fmt.Errorf("config.DISPATCHER_RECONNECT_BASE: must be positive, got %s", c.DispatcherReconnectBase)
	case c.DispatcherReconnectMax < c.DispatcherReconnectBase:
		return fmt.Errorf("config.DISPATCHER_RECONNECT_MAX: must be >= DISPATCHER_RECONNECT_BASE, got %s", c.DispatcherReconnectMax)
	case c.RedisAddr != "" && c.DispatcherRegistryKey == "":
		return errors.New("config.DISPATCHER_REGISTRY_KEY: required when REDIS_ADDR is set")
	case c.RedisAddr != "" && c.DispatcherRefreshInterval <= 0:
		return fmt.Errorf("config.DISPATCHER_REFRESH_INTERVAL: must be positive, got %s", c.DispatcherRefreshInterval)
	}
	return nil
}

// DispatcherSource names the discovery mechanism in effect: "file",
// "redis" or "static". A file takes precedence over Redis.
func (c *Config) DispatcherSource() string {
	switch {
	case c.DispatchersFile != "":
		return "file"
	case c.RedisAddr != "":
		return "redis"
	default:
		return "static"
	}
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
