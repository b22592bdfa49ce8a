package config

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8090" || cfg.WSAddr != ":8091" || cfg.WSPath != "/ws" {
		t.Errorf("unexpected listener defaults: %+v", cfg)
	}
	if cfg.RouterWorkers != 32 || cfg.RouterQueueSize != 4096 {
		t.Errorf("unexpected pool defaults: %d/%d", cfg.RouterWorkers, cfg.RouterQueueSize)
	}
	if cfg.ConnIdleTimeout != 5*time.Minute {
		t.Errorf("ConnIdleTimeout = %s", cfg.ConnIdleTimeout)
	}
	if cfg.DispatcherRegistryKey != "phantom:dispatchers" {
		t.Errorf("DispatcherRegistryKey = %q", cfg.DispatcherRegistryKey)
	}
	if cfg.DispatcherSource() != "static" {
		t.Errorf("DispatcherSource = %q, want static", cfg.DispatcherSource())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("ROUTER_WORKERS", "4")
	t.Setenv("CONN_IDLE_TIMEOUT", "30s")
	t.Setenv("DISPATCHER_ADDRS", "10.0.0.1:7000; 10.0.0.2:7000;")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RouterWorkers != 4 {
		t.Errorf("RouterWorkers = %d, want 4", cfg.RouterWorkers)
	}
	if cfg.ConnIdleTimeout != 30*time.Second {
		t.Errorf("ConnIdleTimeout = %s, want 30s", cfg.ConnIdleTimeout)
	}
	want := []string{"10.0.0.1:7000", "10.0.0.2:7000"}
	if !slices.Equal(cfg.DispatcherAddrs, want) {
		t.Errorf("DispatcherAddrs = %q, want %q", cfg.DispatcherAddrs, want)
	}
	if cfg.DispatcherSource() != "redis" {
		t.Errorf("DispatcherSource = %q, want redis", cfg.DispatcherSource())
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AUTH_JWT_SECRET") {
		t.Errorf("Load = %v, want AUTH_JWT_SECRET error", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ListenAddr:              ":8090",
			WSPath:                  "/ws",
			InternalAPIAddr:         ":9091",
			RouterWorkers:           1,
			RouterQueueSize:         1,
			MaxFrameBytes:           1024,
			ConnSendQueue:           1,
			MaxSessions:             1,
			AuthJWTSecret:           "x",
			DispatcherSendQueue:     1,
			DispatcherReconnectBase: time.Second,
			DispatcherReconnectMax:  time.Second,
		}
	}

	base := valid()
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]struct {
		mutate func(*Config)
		field  string
	}{
		"no listeners":    {func(c *Config) { c.ListenAddr, c.WSAddr = "", "" }, "LISTEN_ADDR"},
		"bad ws path":     {func(c *Config) { c.WSPath = "ws" }, "WS_PATH"},
		"zero workers":    {func(c *Config) { c.RouterWorkers = 0 }, "ROUTER_WORKERS"},
		"backoff inverse": {func(c *Config) { c.DispatcherReconnectMax = time.Millisecond }, "DISPATCHER_RECONNECT_MAX"},
		"redis no key": {func(c *Config) {
			c.RedisAddr = "localhost:6379"
			c.DispatcherRefreshInterval = time.Second
		}, "DISPATCHER_REGISTRY_KEY"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.field) {
				t.Errorf("Validate = %v, want error naming %s", err, tc.field)
			}
		})
	}
}
