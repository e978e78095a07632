// Package worker provides the background task primitives used by the usage
// agent: a cancellable interval ticker for periodic flushes, and a
// panic-isolated fire-and-forget runner for size-triggered flushes.
package worker

import (
	"context"
	"time"

	"go.hive.dev/agent/common"
)

// Task is a unit of work run on every tick or trigger. It receives the
// context passed to Start; Stop does not cancel that context.
type Task func(ctx context.Context)

// IntervalScheduler runs a Task on a fixed period until cancelled. A panic
// or long-running call in one tick never blocks or kills subsequent ticks:
// each tick is dispatched as its own isolated goroutine.
type IntervalScheduler struct {
	interval time.Duration
	task     Task
	logger   *common.ContextLogger
	ticker   *time.Ticker
	done     chan struct{}
}

// NewIntervalScheduler builds an un-started scheduler that will invoke task
// every interval.
func NewIntervalScheduler(interval time.Duration, task Task, logger *common.ContextLogger) *IntervalScheduler {
	if logger == nil {
		logger = common.AgentLogger("scheduler")
	}
	return &IntervalScheduler{
		interval: interval,
		task:     task,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins ticking in a background goroutine. Start returns
// immediately; call Stop (or cancel ctx) for orderly shutdown. Honoring
// cancellation breaks the loop without running one final tick — callers
// that need a final flush must call it explicitly before stopping.
func (s *IntervalScheduler) Start(ctx context.Context) {
	s.ticker = time.NewTicker(s.interval)
	go s.run(ctx)
}

func (s *IntervalScheduler) run(ctx context.Context) {
	defer s.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.ticker.C:
			s.runIsolatedTick(ctx)
		}
	}
}

// runIsolatedTick dispatches one tick's worth of work in its own goroutine
// so that a slow or panicking tick can never wedge the ticker loop; the
// scheduler keeps firing on schedule regardless of how long a prior tick
// takes to finish.
func (s *IntervalScheduler) runIsolatedTick(ctx context.Context) {
	go func() {
		defer common.RecoverAndLog(s.logger)
		s.task(ctx)
	}()
}

// Stop cancels the ticker loop. It does not wait for an in-flight tick to
// finish.
func (s *IntervalScheduler) Stop() {
	select {
	case <-s.done:
		// already stopped
	default:
		close(s.done)
	}
}

// Go runs fn in a new goroutine, recovering and logging any panic instead
// of letting it crash the host process. Used for size-triggered flushes,
// which must never block the caller of add_report.
func Go(logger *common.ContextLogger, fn func()) {
	if logger == nil {
		logger = common.AgentLogger("scheduler")
	}
	go func() {
		defer common.RecoverAndLog(logger)
		fn()
	}()
}
