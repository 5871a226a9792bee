package stream

import (
	"errors"
	"time"
)

// Default session settings.
const (
	DefaultReconnectDelay       = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultPingInterval         = 60 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
)

var (
	// ErrAttemptsExhausted is returned by Supervisor.Run once the number of
	// consecutive failed sessions reaches MaxReconnectAttempts.
	ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")

	// ErrUnstableSession marks a clean close that happened before the session
	// streamed for MinStableDuration.
	ErrUnstableSession = errors.New("session closed before becoming stable")

	// ErrNoURL is returned when the session has no endpoint to dial.
	ErrNoURL = errors.New("stream url is required")
)

// Config holds the settings for a session and its supervisor.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// ReconnectDelay is the fixed pause between sessions.
	ReconnectDelay time.Duration

	// MaxReconnectAttempts is the number of consecutive failed sessions after
	// which the supervisor stops. Zero behaves like one.
	MaxReconnectAttempts uint

	// PingInterval is the keepalive period. Zero disables keepalive pings.
	PingInterval time.Duration

	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration

	// MinStableDuration, when positive, makes a clean close that arrives
	// sooner than this after subscribing count as a failure.
	MinStableDuration time.Duration
}

// DefaultConfig returns a Config for url with the default timings.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ReconnectDelay:       DefaultReconnectDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		PingInterval:         DefaultPingInterval,
		WriteTimeout:         DefaultWriteTimeout,
		HandshakeTimeout:     DefaultHandshakeTimeout,
	}
}

func (c Config) writeTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return DefaultWriteTimeout
	}
	return c.WriteTimeout
}

func (c Config) handshakeTimeout() time.Duration {
	if c.HandshakeTimeout <= 0 {
		return DefaultHandshakeTimeout
	}
	return c.HandshakeTimeout
}

// Outcome is how a session terminated.
type Outcome int

const (
	// OutcomeClean means the peer closed the stream in an orderly way.
	OutcomeClean Outcome = iota
	// OutcomeError covers connect, subscribe, keepalive and read failures.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// State is the lifecycle position of a session.
type State int

const (
	StateConnecting State = iota
	StateSubscribing
	StateStreaming
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Sink receives every decoded record, synchronously and in arrival order.
type Sink[T any] func(T)

// Observer receives lifecycle events. Implementations must be safe for
// concurrent use; a nil Observer is ignored.
type Observer interface {
	SessionStarted()
	SessionEnded(outcome Outcome)
	ReconnectAttempt(attempt uint)
	FrameDecoded(kind Kind)
}

type nopObserver struct{}

func (nopObserver) SessionStarted()       {}
func (nopObserver) SessionEnded(Outcome)  {}
func (nopObserver) ReconnectAttempt(uint) {}
func (nopObserver) FrameDecoded(Kind)     {}
