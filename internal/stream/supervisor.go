package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Supervisor runs sessions back to back until the context is cancelled or
// MaxReconnectAttempts consecutive sessions have failed. Only one session is
// active at a time.
type Supervisor[T any] struct {
	cfg      Config
	decoder  Decoder[T]
	opts     []Option
	logger   *slog.Logger
	observer Observer
}

// NewSupervisor creates a supervisor. The options are passed on to every
// session it starts.
func NewSupervisor[T any](cfg Config, decoder Decoder[T], opts ...Option) *Supervisor[T] {
	o := buildOptions(opts)
	return &Supervisor[T]{
		cfg:      cfg,
		decoder:  decoder,
		opts:     opts,
		logger:   o.logger,
		observer: o.observer,
	}
}

// Run blocks until ctx is cancelled, in which case it returns ctx.Err(), or
// until the attempt ceiling is reached, in which case the returned error wraps
// both ErrAttemptsExhausted and the last session error.
//
// A clean termination resets the attempt counter, so a stream that keeps
// closing in an orderly way is reconnected indefinitely.
func (s *Supervisor[T]) Run(ctx context.Context, sink Sink[T]) error {
	var attempts uint

	for {
		session := NewSession(s.cfg, s.decoder, s.opts...)
		outcome, err := session.Run(ctx, sink)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if outcome == OutcomeClean && session.Streamed() < s.cfg.MinStableDuration {
			outcome = OutcomeError
			err = fmt.Errorf("%w: streamed for %s", ErrUnstableSession, session.Streamed())
		}

		switch outcome {
		case OutcomeClean:
			attempts = 0
		default:
			attempts++
			s.observer.ReconnectAttempt(attempts)

			if attempts >= s.cfg.MaxReconnectAttempts {
				s.logger.Error("giving up on stream",
					"last_session", session.ID(),
					"attempts", attempts,
					"max_attempts", s.cfg.MaxReconnectAttempts,
					"error", err,
				)
				return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempts, err)
			}
		}

		s.logger.Info("reconnecting",
			"last_session", session.ID(),
			"delay", s.cfg.ReconnectDelay,
			"attempt", attempts,
			"max_attempts", s.cfg.MaxReconnectAttempts,
		)

		if err := sleep(ctx, s.cfg.ReconnectDelay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
