package config

import (
	"fmt"
	"time"

	"github.com/rickgao/ls-relay/internal/bridge"
	"github.com/rickgao/ls-relay/internal/stream"
)

// StreamSettings converts the stream section into session settings for the
// configured websocket URL.
func (c *RelayConfig) StreamSettings() stream.Config {
	cfg := stream.Config{
		URL:               c.API.WSURL,
		ReconnectDelay:    durationOr(c.Stream.ReconnectDelay, DefaultReconnectDelay),
		PingInterval:      durationOr(c.Stream.PingInterval, DefaultPingInterval),
		WriteTimeout:      c.Stream.WriteTimeout,
		HandshakeTimeout:  c.Stream.HandshakeTimeout,
		MinStableDuration: c.Stream.MinStableDuration,
	}
	if c.Stream.MaxReconnectAttempts != nil {
		cfg.MaxReconnectAttempts = *c.Stream.MaxReconnectAttempts
	}
	return cfg
}

// BridgeSettings converts the bridge section.
func (c *RelayConfig) BridgeSettings() (bridge.Config, error) {
	policy, err := bridge.ParseOverflowPolicy(c.Bridge.Overflow)
	if err != nil {
		return bridge.Config{}, fmt.Errorf("bridge.overflow: %w", err)
	}
	return bridge.Config{
		Console:   c.Bridge.Console,
		TracePath: c.Bridge.TraceFile,
		QueueSize: c.Bridge.QueueSize,
		Overflow:  policy,
	}, nil
}

// MetricsAddr is the listen address for the metrics server.
func (c *RelayConfig) MetricsAddr() string {
	return fmt.Sprintf(":%d", c.Metrics.Port)
}

// Retries is the REST retry count, falling back to the default when unset.
func (a APIConfig) Retries() int {
	if a.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *a.MaxRetries
}

func durationOr(d *time.Duration, def time.Duration) time.Duration {
	if d == nil {
		return def
	}
	return *d
}
