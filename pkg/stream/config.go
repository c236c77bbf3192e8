package stream

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ClientConfig controls WebSocket reconnect and heartbeat behavior.
type ClientConfig struct {
	Reconnect      bool
	ReconnectDelay time.Duration
	ReconnectMax   int
	PingInterval   time.Duration
	Buffer         int
}

// DefaultClientConfig returns deterministic defaults without reading
// environment variables.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Reconnect:      true,
		ReconnectDelay: 2 * time.Second,
		ReconnectMax:   5,
		PingInterval:   5 * time.Second,
		Buffer:         100,
	}
}

// ClientConfigFromEnv applies STREAM_WS_* environment overrides on top of
// the defaults.
func ClientConfigFromEnv() ClientConfig {
	cfg := DefaultClientConfig()
	if raw := strings.TrimSpace(os.Getenv("STREAM_WS_RECONNECT")); raw != "" {
		cfg.Reconnect = raw != "0" && strings.ToLower(raw) != "false"
	}
	if raw := strings.TrimSpace(os.Getenv("STREAM_WS_RECONNECT_DELAY_MS")); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			cfg.ReconnectDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if raw := strings.TrimSpace(os.Getenv("STREAM_WS_RECONNECT_MAX")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.ReconnectMax = n
		}
	}
	if raw := strings.TrimSpace(os.Getenv("STREAM_WS_PING_INTERVAL_MS")); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			cfg.PingInterval = time.Duration(ms) * time.Millisecond
		}
	}
	return cfg.normalize()
}

func (c ClientConfig) normalize() ClientConfig {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.ReconnectMax < 0 {
		c.ReconnectMax = 5
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 5 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 100
	}
	return c
}
