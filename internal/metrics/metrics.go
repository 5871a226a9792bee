package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/ls-relay/internal/bridge"
	"github.com/rickgao/ls-relay/internal/stream"
	"github.com/rickgao/ls-relay/internal/version"
)

const namespace = "lsrelay"

var (
	_ stream.Observer = (*Stream)(nil)
	_ bridge.Observer = (*Bridge)(nil)
)

// Registry owns the relay's collectors.
type Registry struct {
	reg    *prometheus.Registry
	Stream *Stream
	Bridge *Bridge
}

// New creates a registry with the relay, Go runtime and process collectors.
// feed labels every series, e.g. "UH1".
func New(feed string) *Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"feed": feed}

	r := &Registry{
		reg:    reg,
		Stream: newStream(labels),
		Bridge: newBridge(labels),
	}

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information.",
		ConstLabels: prometheus.Labels{"version": version.Version, "commit": version.Commit},
	})
	buildInfo.Set(1)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo,
	)
	r.Stream.register(reg)
	r.Bridge.register(reg)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Stream implements stream.Observer.
type Stream struct {
	sessions   prometheus.Counter
	outcomes   *prometheus.CounterVec
	reconnects prometheus.Counter
	attempt    prometheus.Gauge
	frames     *prometheus.CounterVec
}

func newStream(labels prometheus.Labels) *Stream {
	return &Stream{
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "sessions_started_total",
			Help: "Websocket sessions started.", ConstLabels: labels,
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "sessions_ended_total",
			Help: "Websocket sessions ended, by outcome.", ConstLabels: labels,
		}, []string{"outcome"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "failed_sessions_total",
			Help: "Sessions that counted against the reconnect ceiling.", ConstLabels: labels,
		}),
		attempt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "stream", Name: "consecutive_failures",
			Help: "Current consecutive failed session count.", ConstLabels: labels,
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "frames_total",
			Help: "Inbound frames, by decoded kind.", ConstLabels: labels,
		}, []string{"kind"}),
	}
}

func (s *Stream) register(reg prometheus.Registerer) {
	reg.MustRegister(s.sessions, s.outcomes, s.reconnects, s.attempt, s.frames)
}

func (s *Stream) SessionStarted() {
	s.sessions.Inc()
}

func (s *Stream) SessionEnded(outcome stream.Outcome) {
	s.outcomes.WithLabelValues(outcome.String()).Inc()
	if outcome == stream.OutcomeClean {
		s.attempt.Set(0)
	}
}

func (s *Stream) ReconnectAttempt(attempt uint) {
	s.reconnects.Inc()
	s.attempt.Set(float64(attempt))
}

func (s *Stream) FrameDecoded(kind stream.Kind) {
	s.frames.WithLabelValues(kind.String()).Inc()
}

// Bridge implements bridge.Observer.
type Bridge struct {
	published     prometheus.Counter
	publishFailed prometheus.Counter
	traceFailed   prometheus.Counter
	dropped       prometheus.Counter
	depth         prometheus.Gauge
}

func newBridge(labels prometheus.Labels) *Bridge {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge", Name: name,
			Help: help, ConstLabels: labels,
		})
	}
	return &Bridge{
		published:     counter("records_published_total", "Records published to subscribers."),
		publishFailed: counter("publish_failures_total", "Records that failed to encode or publish."),
		traceFailed:   counter("trace_failures_total", "Records that failed to reach the trace file."),
		dropped:       counter("queue_dropped_total", "Records evicted from a full queue."),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "queue_depth",
			Help: "Records waiting in the bridge queue.", ConstLabels: labels,
		}),
	}
}

func (b *Bridge) register(reg prometheus.Registerer) {
	reg.MustRegister(b.published, b.publishFailed, b.traceFailed, b.dropped, b.depth)
}

func (b *Bridge) Published()       { b.published.Inc() }
func (b *Bridge) PublishFailed()   { b.publishFailed.Inc() }
func (b *Bridge) TraceFailed()     { b.traceFailed.Inc() }
func (b *Bridge) Dropped()         { b.dropped.Inc() }
func (b *Bridge) QueueDepth(n int) { b.depth.Set(float64(n)) }

// Serve exposes the registry on addr at path, plus /health, until ctx is
// cancelled.
func Serve(ctx context.Context, addr, path string, r *Registry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle(path, r.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr, "path", path)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	}
}
