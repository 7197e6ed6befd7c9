// Package scheduler runs the limit and usage collection loops on their own
// intervals. Each loop sleeps first, then collects, so startup collection
// stays the caller's decision. The loops are independent: a slow or
// panicking limit cycle never delays usage collection.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// Runner is the collection surface the scheduler drives.
type Runner interface {
	CollectLimits(ctx context.Context, forceRefresh bool) int
	CollectUsage(ctx context.Context, forceRefresh bool) int
}

// Status is the health snapshot exposed over HTTP.
type Status struct {
	Running          bool    `json:"running"`
	LimitIntervalSec float64 `json:"limit_interval_seconds"`
	UsageIntervalSec float64 `json:"usage_interval_seconds"`
	LimitLoopAlive   bool    `json:"limit_loop_alive"`
	UsageLoopAlive   bool    `json:"usage_loop_alive"`
}

type Scheduler struct {
	runner        Runner
	limitInterval time.Duration
	usageInterval time.Duration
	log           *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    sync.WaitGroup

	limitAlive atomic.Bool
	usageAlive atomic.Bool
}

func New(runner Runner, limitInterval, usageInterval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		runner:        runner,
		limitInterval: limitInterval,
		usageInterval: usageInterval,
		log:           log,
	}
}

// Start launches both loops. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.done.Add(2)
	go s.loop(ctx, "limit", s.limitInterval, &s.limitAlive, func(ctx context.Context) {
		s.runner.CollectLimits(ctx, false)
	})
	go s.loop(ctx, "usage", s.usageInterval, &s.usageAlive, func(ctx context.Context) {
		s.runner.CollectUsage(ctx, false)
	})
	s.log.Info("scheduler started",
		"limit_interval", s.limitInterval.String(), "usage_interval", s.usageInterval.String())
}

// Stop cancels both loops and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.done.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return Status{
		Running:          running,
		LimitIntervalSec: s.limitInterval.Seconds(),
		UsageIntervalSec: s.usageInterval.Seconds(),
		LimitLoopAlive:   s.limitAlive.Load(),
		UsageLoopAlive:   s.usageAlive.Load(),
	}
}

// loop sleeps, collects, repeats. A panic in one cycle is logged and the
// loop keeps going; only context cancellation ends it.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, alive *atomic.Bool, collect func(context.Context)) {
	defer s.done.Done()
	alive.Store(true)
	defer alive.Store(false)

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.runCycle(ctx, name, collect)
		timer.Reset(interval)
	}
}

func (s *Scheduler) runCycle(ctx context.Context, name string, collect func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("collection cycle panicked", "loop", name, "panic", r)
		}
	}()
	collect(ctx)
}
