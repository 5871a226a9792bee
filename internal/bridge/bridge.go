// Package bridge connects a stream supervisor to a publisher.
//
// The supervisor's sink only enqueues records. A single worker drains the
// queue and, for every record, echoes it to the console, appends it to the
// trace file and publishes it as JSON. Each of those steps is independent:
// a failing trace never prevents publishing and vice versa.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/ls-relay/internal/publish"
	"github.com/rickgao/ls-relay/internal/stream"
)

// Default queue size.
const DefaultQueueSize = 1024

// Config controls the side effects applied to every record.
type Config struct {
	// Console echoes each record as a JSON line.
	Console bool

	// TracePath, when set, appends each record to that file.
	TracePath string

	QueueSize int
	Overflow  OverflowPolicy
}

// Runner produces records, typically a *stream.Supervisor.
type Runner[T any] interface {
	Run(ctx context.Context, sink stream.Sink[T]) error
}

// Observer receives per-record outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	Published()
	PublishFailed()
	TraceFailed()
	Dropped()
	QueueDepth(n int)
}

type nopObserver struct{}

func (nopObserver) Published()     {}
func (nopObserver) PublishFailed() {}
func (nopObserver) TraceFailed()   {}
func (nopObserver) Dropped()       {}
func (nopObserver) QueueDepth(int) {}

// Option configures a Bridge.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer Observer
	console  io.Writer
}

// WithLogger sets the logger. Nil selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver registers per-record callbacks, typically metrics.
func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithConsole redirects the console echo, which defaults to stdout.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// Bridge relays records from a Runner to a Publisher.
type Bridge[T any] struct {
	cfg       Config
	runner    Runner[T]
	publisher publish.Publisher
	logger    *slog.Logger
	observer  Observer
	console   io.Writer
}

// New creates a bridge. The publisher is not closed by the bridge.
func New[T any](cfg Config, runner Runner[T], publisher publish.Publisher, opts ...Option) *Bridge[T] {
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
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	var console io.Writer
	if cfg.Console {
		console = o.console
		if console == nil {
			console = os.Stdout
		}
	}

	return &Bridge[T]{
		cfg:       cfg,
		runner:    runner,
		publisher: publisher,
		logger:    o.logger,
		observer:  o.observer,
		console:   console,
	}
}

// Run relays until the runner returns. Records already queued when the
// runner stops are still handled before Run returns the runner's error.
func (b *Bridge[T]) Run(ctx context.Context) error {
	queue := NewQueue[T](b.cfg.QueueSize, b.cfg.Overflow)
	queue.OnDrop(func(T) {
		b.observer.Dropped()
	})

	var trace *Trace
	if b.cfg.TracePath != "" {
		trace = NewTrace(b.cfg.TracePath)
		defer trace.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	// Unblock a producer waiting on a full queue once we are shutting down.
	stop := context.AfterFunc(gctx, queue.Close)
	defer stop()

	g.Go(func() error {
		defer queue.Close()
		return b.runner.Run(gctx, func(rec T) {
			if !queue.Push(rec) {
				b.logger.Debug("queue closed, discarding record")
				return
			}
			b.observer.QueueDepth(queue.Len())
		})
	})

	g.Go(func() error {
		for {
			rec, ok := queue.Pop()
			if !ok {
				return nil
			}
			b.observer.QueueDepth(queue.Len())
			b.handle(rec, trace)
		}
	})

	err := g.Wait()

	stats := queue.Stats()
	b.logger.Info("bridge stopped",
		"received", stats.Pushed,
		"handled", stats.Popped,
		"dropped", stats.Dropped,
	)
	return err
}

func (b *Bridge[T]) handle(rec T, trace *Trace) {
	payload, marshalErr := json.Marshal(rec)

	line := payload
	if marshalErr != nil {
		line = []byte(fmt.Sprintf("%+v", rec))
	}

	if b.console != nil {
		if _, err := fmt.Fprintf(b.console, "%s\n", line); err != nil {
			b.logger.Warn("console echo failed", "error", err)
		}
	}

	if trace != nil {
		if err := trace.Append(line); err != nil {
			b.logger.Warn("trace write failed", "path", b.cfg.TracePath, "error", err)
			b.observer.TraceFailed()
		}
	}

	if marshalErr != nil {
		b.logger.Error("encode record failed", "error", marshalErr)
		b.observer.PublishFailed()
		return
	}

	if err := b.publisher.Publish(payload); err != nil {
		b.logger.Warn("publish failed", "error", err)
		b.observer.PublishFailed()
		return
	}
	b.observer.Published()
}
