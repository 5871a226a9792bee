package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Option configures a Session or Supervisor.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer Observer
}

// WithLogger sets the logger. Nil selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver registers lifecycle callbacks, typically metrics.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return o
}

// Session is a single connect, subscribe and stream cycle. A Session is not
// reusable; create a new one for every connection.
type Session[T any] struct {
	id       string
	cfg      Config
	decoder  Decoder[T]
	logger   *slog.Logger
	observer Observer

	mu       sync.Mutex
	state    State
	streamed time.Duration
}

// NewSession creates a session for cfg.URL using decoder.
func NewSession[T any](cfg Config, decoder Decoder[T], opts ...Option) *Session[T] {
	o := buildOptions(opts)
	id := uuid.NewString()

	return &Session[T]{
		id:       id,
		cfg:      cfg,
		decoder:  decoder,
		logger:   o.logger.With("session_id", id),
		observer: o.observer,
	}
}

// ID returns the session identifier used in logs.
func (s *Session[T]) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Streamed returns how long the session spent in StateStreaming.
func (s *Session[T]) Streamed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamed
}

func (s *Session[T]) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run dials the endpoint, sends the subscription request and delivers every
// decoded record to sink until the stream ends. It returns OutcomeClean for an
// orderly close and OutcomeError with the cause otherwise. Context
// cancellation is reported as OutcomeError with ctx.Err().
func (s *Session[T]) Run(ctx context.Context, sink Sink[T]) (Outcome, error) {
	s.observer.SessionStarted()

	outcome, err := s.run(ctx, sink)

	s.setState(StateTerminated)
	s.observer.SessionEnded(outcome)

	if err != nil {
		s.logger.Warn("session terminated", "outcome", outcome, "error", err)
	} else {
		s.logger.Info("session terminated", "outcome", outcome)
	}
	return outcome, err
}

func (s *Session[T]) run(ctx context.Context, sink Sink[T]) (Outcome, error) {
	if s.cfg.URL == "" {
		return OutcomeError, ErrNoURL
	}

	s.setState(StateConnecting)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.cfg.handshakeTimeout(),
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return OutcomeError, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()

	s.logger.Debug("websocket connected", "url", s.cfg.URL)
	s.setState(StateSubscribing)

	req, err := s.decoder.SubscriptionRequest(ctx)
	if err != nil {
		return OutcomeError, fmt.Errorf("build subscription: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(s.cfg.writeTimeout()))
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return OutcomeError, fmt.Errorf("send subscription: %w", err)
	}

	s.setState(StateStreaming)
	s.logger.Info("subscribed", "url", s.cfg.URL)

	started := time.Now()
	defer func() {
		s.mu.Lock()
		s.streamed = time.Since(started)
		s.mu.Unlock()
	}()

	return s.stream(ctx, conn, sink)
}

// inbound carries either a frame or the read error that ended the stream.
type inbound struct {
	frame Frame
	err   error
}

func (s *Session[T]) stream(ctx context.Context, conn *websocket.Conn, sink Sink[T]) (Outcome, error) {
	frames := make(chan inbound)
	done := make(chan struct{})
	defer close(done)

	s.installHandlers(conn, frames, done)
	go readLoop(conn, frames, done)

	var tick <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return OutcomeError, ctx.Err()

		case <-tick:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.writeTimeout())); err != nil {
				return OutcomeError, fmt.Errorf("send ping: %w", err)
			}

		case in := <-frames:
			if in.err != nil {
				return classifyReadError(in.err)
			}

			parsed := s.decoder.Decode(in.frame)
			s.observer.FrameDecoded(parsed.Kind)

			switch parsed.Kind {
			case KindData:
				sink(parsed.Record)
			case KindKeepaliveProbe:
				if err := conn.WriteControl(websocket.PongMessage, in.frame.Payload, time.Now().Add(s.cfg.writeTimeout())); err != nil {
					return OutcomeError, fmt.Errorf("send pong: %w", err)
				}
			case KindStreamClosed:
				return OutcomeClean, nil
			}
		}
	}
}

// installHandlers routes control frames through the frames channel so the
// decoder sees them in arrival order. Handlers run on the reader goroutine.
func (s *Session[T]) installHandlers(conn *websocket.Conn, frames chan<- inbound, done <-chan struct{}) {
	deliver := func(f Frame) {
		select {
		case frames <- inbound{frame: f}:
		case <-done:
		}
	}

	conn.SetPingHandler(func(data string) error {
		deliver(Frame{Kind: FramePing, Payload: []byte(data)})
		return nil
	})

	conn.SetPongHandler(func(data string) error {
		deliver(Frame{Kind: FramePong, Payload: []byte(data)})
		return nil
	})

	conn.SetCloseHandler(func(code int, text string) error {
		deliver(Frame{Kind: FrameClose, Payload: []byte(text)})
		// Echo the close frame; gorilla only does this in its default handler.
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(time.Second),
		)
		return nil
	})
}

func readLoop(conn *websocket.Conn, frames chan<- inbound, done <-chan struct{}) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case frames <- inbound{err: err}:
			case <-done:
			}
			return
		}

		var kind FrameKind
		switch msgType {
		case websocket.BinaryMessage:
			kind = FrameBinary
		case websocket.TextMessage:
			kind = FrameText
		default:
			continue
		}

		select {
		case frames <- inbound{frame: Frame{Kind: kind, Payload: data}}:
		case <-done:
			return
		}
	}
}

// classifyReadError maps the error that ended reading onto an outcome. An
// orderly close or end of stream is clean; a dropped connection is not.
func classifyReadError(err error) (Outcome, error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseAbnormalClosure {
			return OutcomeError, fmt.Errorf("read: %w", err)
		}
		return OutcomeClean, nil
	}
	if errors.Is(err, io.EOF) {
		return OutcomeClean, nil
	}
	return OutcomeError, fmt.Errorf("read: %w", err)
}
