package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/ls-relay/internal/bridge"
	"github.com/rickgao/ls-relay/internal/lsfeed"
	"github.com/rickgao/ls-relay/internal/publish"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.Token == "" && (c.API.AppKey == "" || c.API.AppSecret == "") {
		return errors.New("api.app_key and api.app_secret are required when api.token is not set")
	}
	if c.API.MaxRetries != nil && *c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RateLimit < 1 {
		return errors.New("api.rate_limit must be >= 1")
	}

	if err := c.Stream.validate(); err != nil {
		return err
	}

	switch publish.Mode(c.Publisher.Mode) {
	case publish.ModeBind, publish.ModeConnect:
		if c.Publisher.Endpoint == "" {
			return errors.New("publisher.endpoint is required")
		}
	case publish.ModeNATS:
		if c.Publisher.Endpoint == "" || c.Publisher.Subject == "" {
			return errors.New("publisher.endpoint and publisher.subject are required for nats")
		}
	default:
		return fmt.Errorf("publisher.mode must be bind, connect or nats, got %q", c.Publisher.Mode)
	}

	if c.Bridge.QueueSize < 1 {
		return errors.New("bridge.queue_size must be >= 1")
	}
	if _, err := bridge.ParseOverflowPolicy(c.Bridge.Overflow); err != nil {
		return fmt.Errorf("bridge.overflow: %w", err)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (s *StreamConfig) validate() error {
	kind, ok := lsfeed.KindOf(s.TrCd)
	if !ok {
		return fmt.Errorf("stream.tr_cd %q is not a supported real-time code", s.TrCd)
	}
	if string(kind) != s.Kind {
		return fmt.Errorf("stream.tr_cd %s produces %s records, but stream.kind is %q", s.TrCd, kind, s.Kind)
	}
	if s.TrKey == "" {
		return errors.New("stream.tr_key or stream.shcode is required")
	}
	if s.ReconnectDelay != nil && *s.ReconnectDelay < 0 {
		return errors.New("stream.reconnect_delay must be >= 0")
	}
	if s.PingInterval != nil && *s.PingInterval < 0 {
		return errors.New("stream.ping_interval must be >= 0")
	}
	if s.MinStableDuration < 0 {
		return errors.New("stream.min_stable_duration must be >= 0")
	}
	return nil
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
