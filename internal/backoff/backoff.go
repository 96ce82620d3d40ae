// Package backoff waits out the randomized delay between scan cycles in
// one-second steps so a stop request lands within about a second.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Source draws a uniform integer in [0, n).
type Source interface {
	UintN(n uint) uint
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Scheduler draws delays and sleeps through them one second at a time.
type Scheduler struct {
	src    Source
	sleep  SleepFunc
	step   time.Duration
	logger *zap.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithSource replaces the random source.
func WithSource(src Source) Option {
	return func(s *Scheduler) { s.src = src }
}

// WithSleep replaces the sleeper; tests use it to simulate seconds.
func WithSleep(fn SleepFunc) Option {
	return func(s *Scheduler) { s.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

type globalSource struct{}

func (globalSource) UintN(n uint) uint { return rand.UintN(n) }

// New returns a Scheduler using the global generator and real sleeps.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		src:    globalSource{},
		sleep:  SleepContext,
		step:   time.Second,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draw picks a delay uniformly from [minSeconds, maxSeconds]. Callers
// guarantee minSeconds <= maxSeconds.
func (s *Scheduler) Draw(minSeconds, maxSeconds uint) uint {
	if maxSeconds <= minSeconds {
		return minSeconds
	}
	span := maxSeconds - minSeconds
	if span == math.MaxUint {
		// span+1 would wrap to zero.
		return minSeconds + s.src.UintN(span)
	}
	return minSeconds + s.src.UintN(span+1)
}

// Wait draws a delay, logs it, and sleeps through it. It returns the drawn
// delay and whether the wait ran to completion.
func (s *Scheduler) Wait(ctx context.Context, minSeconds, maxSeconds uint, isCancelled func() bool) (uint, bool) {
	delay := s.Draw(minSeconds, maxSeconds)
	s.logger.Info("sleeping until next cycle",
		zap.Uint("minutes", delay/60),
		zap.Uint("seconds", delay%60),
		zap.Uint("delay_seconds", delay),
	)
	return delay, s.Pause(ctx, delay, isCancelled)
}

// Pause sleeps for seconds, checking isCancelled before every step. It
// returns false as soon as a check or ctx reports cancellation.
func (s *Scheduler) Pause(ctx context.Context, seconds uint, isCancelled func() bool) bool {
	for i := uint(0); i < seconds; i++ {
		if isCancelled != nil && isCancelled() {
			return false
		}
		if err := s.sleep(ctx, s.step); err != nil {
			return false
		}
	}
	return true
}

// SleepContext sleeps for d unless ctx is cancelled first.
func SleepContext(ctx context.Context, d time.Duration) error {
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
