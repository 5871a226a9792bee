package config

import (
	"time"

	"github.com/rickgao/ls-relay/internal/bridge"
	"github.com/rickgao/ls-relay/internal/lsfeed"
	"github.com/rickgao/ls-relay/internal/publish"
	"github.com/rickgao/ls-relay/internal/stream"
)

// Default values for optional configuration fields.
const (
	DefaultRestURL          = "https://openapi.ls-sec.co.kr:8080"
	DefaultWSURL            = lsfeed.ProdURL
	DefaultTokenCacheFile   = "ls_token_cache.json"
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryBackoff     = time.Second
	DefaultRateLimit        = 1
	DefaultStreamKind       = string(lsfeed.KindOrderbook)
	DefaultReconnectDelay   = stream.DefaultReconnectDelay
	DefaultMaxAttempts      = stream.DefaultMaxReconnectAttempts
	DefaultPingInterval     = stream.DefaultPingInterval
	DefaultWriteTimeout     = stream.DefaultWriteTimeout
	DefaultHandshakeTimeout = stream.DefaultHandshakeTimeout
	DefaultPublisherMode    = string(publish.ModeBind)
	DefaultEndpoint         = "tcp://0.0.0.0:5557"
	DefaultQueueSize        = bridge.DefaultQueueSize
	DefaultOverflow         = string(bridge.OverflowBlock)
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// defaultTrCd maps a stream kind to its unified-market TR code.
var defaultTrCd = map[string]string{
	string(lsfeed.KindOrderbook): lsfeed.TrUnifiedOrderbook,
	string(lsfeed.KindExecution): lsfeed.TrUnifiedExecution,
}

func (c *RelayConfig) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.TokenCacheFile == "" {
		c.API.TokenCacheFile = DefaultTokenCacheFile
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == nil {
		n := DefaultMaxRetries
		c.API.MaxRetries = &n
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = DefaultRateLimit
	}

	// Stream defaults
	if c.Stream.Kind == "" {
		c.Stream.Kind = DefaultStreamKind
	}
	if c.Stream.TrCd == "" {
		c.Stream.TrCd = defaultTrCd[c.Stream.Kind]
	}
	if c.Stream.TrKey == "" && c.Stream.ShortCode != "" {
		c.Stream.TrKey = lsfeed.TrKey(c.Stream.TrCd, c.Stream.ShortCode)
	}
	if c.Stream.ReconnectDelay == nil {
		d := DefaultReconnectDelay
		c.Stream.ReconnectDelay = &d
	}
	if c.Stream.MaxReconnectAttempts == nil {
		n := uint(DefaultMaxAttempts)
		c.Stream.MaxReconnectAttempts = &n
	}
	if c.Stream.PingInterval == nil {
		d := DefaultPingInterval
		c.Stream.PingInterval = &d
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}

	// Publisher defaults
	if c.Publisher.Mode == "" {
		c.Publisher.Mode = DefaultPublisherMode
	}
	if c.Publisher.Endpoint == "" && c.Publisher.Mode != string(publish.ModeNATS) {
		c.Publisher.Endpoint = DefaultEndpoint
	}

	// Bridge defaults
	if c.Bridge.QueueSize == 0 {
		c.Bridge.QueueSize = DefaultQueueSize
	}
	if c.Bridge.Overflow == "" {
		c.Bridge.Overflow = DefaultOverflow
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
