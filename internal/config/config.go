package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	API       APIConfig       `yaml:"api"`
	Stream    StreamConfig    `yaml:"stream"`
	Publisher PublisherConfig `yaml:"publisher"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds LS OpenAPI settings.
type APIConfig struct {
	RestURL        string        `yaml:"rest_url"`
	WSURL          string        `yaml:"ws_url"`
	AppKey         string        `yaml:"app_key"`
	AppSecret      string        `yaml:"app_secret"`
	Token          string        `yaml:"token"`            // Static token; skips the OAuth exchange when set
	TokenCacheFile string        `yaml:"token_cache_file"` // JSON cache reused across restarts
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     *int          `yaml:"max_retries"` // nil means default; 0 disables retries
	RateLimit      int           `yaml:"rate_limit"`  // REST requests per second
}

// StreamConfig selects the real-time feed and its connection behaviour.
// Pointer fields distinguish an explicit zero from an unset value.
type StreamConfig struct {
	Kind                 string         `yaml:"kind"` // orderbook or execution
	TrCd                 string         `yaml:"tr_cd"`
	TrKey                string         `yaml:"tr_key"`
	ShortCode            string         `yaml:"shcode"` // Builds tr_key when tr_key is empty
	VerifyInstrument     bool           `yaml:"verify_instrument"`
	ReconnectDelay       *time.Duration `yaml:"reconnect_delay"`        // 0 reconnects immediately
	MaxReconnectAttempts *uint          `yaml:"max_reconnect_attempts"` // 0 disables retries
	PingInterval         *time.Duration `yaml:"ping_interval"`          // 0 disables keepalive pings
	WriteTimeout         time.Duration  `yaml:"write_timeout"`
	HandshakeTimeout     time.Duration  `yaml:"handshake_timeout"`
	MinStableDuration    time.Duration  `yaml:"min_stable_duration"`
}

// PublisherConfig holds fan-out settings.
type PublisherConfig struct {
	Mode     string `yaml:"mode"` // bind, connect or nats
	Endpoint string `yaml:"endpoint"`
	Subject  string `yaml:"subject"` // NATS subject
}

// BridgeConfig holds per-record side effects.
type BridgeConfig struct {
	Console   bool   `yaml:"console"`
	TraceFile string `yaml:"trace_file"`
	QueueSize int    `yaml:"queue_size"`
	Overflow  string `yaml:"overflow"` // block or drop_oldest
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
