package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrBusy is returned by RunOnce while another cycle is still executing.
	ErrBusy = errors.New("scheduler: cycle already in progress")
	// ErrStarted is returned by Start on a scheduler that is already running.
	ErrStarted = errors.New("scheduler: already started")
)

// TickFunc is invoked once per cycle with the cycle start time.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval        time.Duration
	RunOnStart      bool
	AlignToInterval bool
	StartupDelay    time.Duration
}

// Scheduler drives periodic, non-overlapping execution of a cycle.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger

	inFlight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Start runs the loop in the background until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context, tick TickFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		if err := s.Run(ctx, tick); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("scheduler loop stopped")
		}
	}()
	return nil
}

// Stop cancels a loop begun with Start and waits for the current cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a cycle is executing right now.
func (s *Scheduler) Running() bool {
	return s.inFlight.Load()
}

// RunOnce executes a single cycle unless one is already in flight.
func (s *Scheduler) RunOnce(ctx context.Context, tick TickFunc) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.inFlight.Store(false)

	at := time.Now().UTC()
	s.logger.Info().Time("at", at).Msg("executing scheduled cycle")

	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("cycle execution failed")
		return err
	}
	return nil
}

// Run blocks, invoking tick on start and then every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunOnStart {
		s.cycle(ctx, tick)
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			delay = 0
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_cycle", next).Msg("waiting for next cycle")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.cycle(ctx, tick)

		// an overrun starts the next cycle right away instead of replaying missed ones
		next = next.Add(s.opts.Interval)
		if now := time.Now().UTC(); next.Before(now) {
			next = now
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context, tick TickFunc) {
	if err := s.RunOnce(ctx, tick); errors.Is(err, ErrBusy) {
		s.logger.Warn().Msg("previous cycle still running, skipping")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToInterval {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}
