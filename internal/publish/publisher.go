// Package publish fans decoded records out to local subscribers.
//
// A Handle wraps one broadcast socket. ZeroMQ PUB sockets are created with
// Bind or Connect; a NATS subject is opened with ConnectNATS. All of them are
// used the same way:
//
//	h, err := publish.Bind(ctx, "tcp://0.0.0.0:5557")
//	defer h.Close()
//	err = h.Publish(payload)
//
// Delivery is best effort. Subscribers that connect late miss earlier
// messages and nothing is replayed.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/nats-io/nats.go"
)

var (
	// ErrClosed is returned when publishing through a closed handle.
	ErrClosed = errors.New("publisher closed")

	// ErrNoEndpoint is returned when no endpoint is given.
	ErrNoEndpoint = errors.New("publisher endpoint is required")
)

// Publisher sends payloads to every current subscriber.
type Publisher interface {
	Publish(payload []byte) error
	Close() error
}

// Mode selects how a socket attaches to its endpoint.
type Mode string

const (
	ModeBind    Mode = "bind"
	ModeConnect Mode = "connect"
	ModeNATS    Mode = "nats"
)

// transport is one underlying broadcast socket.
type transport interface {
	send(payload []byte) error
	close() error
	addr() net.Addr
}

// shared is the single access point behind every clone of a Handle.
type shared struct {
	mu     sync.Mutex
	t      transport
	closed bool
}

// Handle is a cheaply copyable reference to a broadcast socket. Publish calls
// from any number of goroutines and clones are serialized, so each payload
// goes out whole and in lock acquisition order.
type Handle struct {
	s *shared
}

func newHandle(t transport) *Handle {
	return &Handle{s: &shared{t: t}}
}

// Open creates a handle in the given mode. subject is only used for NATS.
func Open(ctx context.Context, mode Mode, endpoint, subject string) (*Handle, error) {
	switch mode {
	case ModeBind, "":
		return Bind(ctx, endpoint)
	case ModeConnect:
		return Connect(ctx, endpoint)
	case ModeNATS:
		return ConnectNATS(endpoint, subject)
	default:
		return nil, fmt.Errorf("unknown publisher mode %q", mode)
	}
}

// Bind listens on endpoint, e.g. "tcp://0.0.0.0:5557".
func Bind(ctx context.Context, endpoint string) (*Handle, error) {
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}

	sock := zmq4.NewPub(ctx)
	if err := sock.Listen(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bind %s: %w", endpoint, err)
	}
	return newHandle(&zmqTransport{sock: sock}), nil
}

// Connect dials a subscriber that bound endpoint.
func Connect(ctx context.Context, endpoint string) (*Handle, error) {
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}

	sock := zmq4.NewPub(ctx)
	if err := sock.Dial(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	return newHandle(&zmqTransport{sock: sock}), nil
}

// ConnectNATS publishes on subject through the NATS server at url.
func ConnectNATS(url, subject string) (*Handle, error) {
	if url == "" {
		return nil, ErrNoEndpoint
	}
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}

	nc, err := nats.Connect(url, nats.Name("ls-relay"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return newHandle(&natsTransport{nc: nc, subject: subject}), nil
}

// Clone returns a handle sharing the same socket.
func (h *Handle) Clone() *Handle {
	return &Handle{s: h.s}
}

// Publish sends payload to all connected subscribers.
func (h *Handle) Publish(payload []byte) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	if h.s.closed {
		return ErrClosed
	}
	if err := h.s.t.send(payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Addr returns the bound or dialed address, if known.
func (h *Handle) Addr() net.Addr {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.t.addr()
}

// Close releases the socket for this handle and all of its clones.
func (h *Handle) Close() error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	if h.s.closed {
		return nil
	}
	h.s.closed = true
	return h.s.t.close()
}

type zmqTransport struct {
	sock zmq4.Socket
}

func (z *zmqTransport) send(payload []byte) error {
	return z.sock.Send(zmq4.NewMsg(payload))
}

func (z *zmqTransport) close() error {
	return z.sock.Close()
}

func (z *zmqTransport) addr() net.Addr {
	return z.sock.Addr()
}

type natsTransport struct {
	nc      *nats.Conn
	subject string
}

func (n *natsTransport) send(payload []byte) error {
	return n.nc.Publish(n.subject, payload)
}

func (n *natsTransport) close() error {
	return n.nc.Drain()
}

func (n *natsTransport) addr() net.Addr {
	return nil
}
