package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-zeromq/zmq4"
)

// ErrNotUTF8 is returned by RecvString for binary payloads.
var ErrNotUTF8 = errors.New("payload is not valid UTF-8")

// Subscriber receives payloads from a ZeroMQ publisher. Messages are pumped
// off the socket by a background goroutine so receives can honour a context
// or a timeout.
type Subscriber struct {
	sock   zmq4.Socket
	cancel context.CancelFunc
	msgs   chan []byte

	// done is closed once the pump has stopped; err is then the cause.
	done     chan struct{}
	failOnce sync.Once
	err      error
}

// Subscribe attaches a SUB socket to endpoint and filters on topic, a byte
// prefix; an empty topic receives everything. In ModeConnect the subscriber
// dials a bound publisher, in ModeBind it listens for a connecting one.
func Subscribe(ctx context.Context, mode Mode, endpoint, topic string) (*Subscriber, error) {
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}

	ctx, cancel := context.WithCancel(ctx)
	sock := zmq4.NewSub(ctx)

	var err error
	switch mode {
	case ModeConnect, "":
		err = sock.Dial(endpoint)
	case ModeBind:
		err = sock.Listen(endpoint)
	default:
		err = fmt.Errorf("unsupported subscriber mode %q", mode)
	}
	if err == nil {
		err = sock.SetOption(zmq4.OptionSubscribe, topic)
	}
	if err != nil {
		sock.Close()
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", endpoint, err)
	}

	s := &Subscriber{
		sock:   sock,
		cancel: cancel,
		msgs:   make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go s.pump(ctx)
	return s, nil
}

func (s *Subscriber) pump(ctx context.Context) {
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			s.fail(err)
			return
		}

		select {
		case s.msgs <- msg.Bytes():
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		}
	}
}

// fail records the terminal error. Every later receive returns it.
func (s *Subscriber) fail(err error) {
	s.failOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Recv blocks for the next payload.
func (s *Subscriber) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-s.msgs:
		return msg, nil
	case <-s.done:
		// Hand out anything the pump queued before it stopped.
		select {
		case msg := <-s.msgs:
			return msg, nil
		default:
		}
		return nil, fmt.Errorf("recv: %w", s.err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RecvString receives the next payload as a string.
func (s *Subscriber) RecvString(ctx context.Context) (string, error) {
	msg, err := s.Recv(ctx)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(msg) {
		return "", ErrNotUTF8
	}
	return string(msg), nil
}

// RecvTimeout waits at most d. ok is false when nothing arrived in time.
func (s *Subscriber) RecvTimeout(d time.Duration) (msg []byte, ok bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	msg, err = s.Recv(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// Close stops the receive loop and closes the socket.
func (s *Subscriber) Close() error {
	s.cancel()
	return s.sock.Close()
}
