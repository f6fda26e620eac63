// Package scheduler runs a task immediately and then on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 30 * time.Second

// Scheduler fires a task on every tick without waiting for the previous run
// to finish. Tasks are expected to guard themselves against overlap.
type Scheduler struct {
	interval time.Duration
	task     func(context.Context)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New creates a stopped scheduler.
func New(interval time.Duration, task func(context.Context)) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval, task: task}
}

// Start runs the task once right away and arms the ticker. Calling Start on a
// running scheduler does nothing. Tasks receive ctx, so cancelling it aborts
// in-flight runs; Stop does not. Once ctx is done the scheduler counts as
// stopped and may be started again.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.task(ctx)
	go s.loop(ctx, s.stop, s.done)

	slog.Debug("scheduler: started", slog.Duration("interval", s.interval))
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			go s.task(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			s.mu.Lock()
			if s.stop == stop {
				s.stop = nil
				s.done = nil
			}
			s.mu.Unlock()
			return
		}
	}
}

// Stop cancels future ticks and waits for the ticker loop to exit. It is a
// no-op on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	done := s.done
	s.stop = nil
	s.done = nil
	s.mu.Unlock()

	<-done
	slog.Debug("scheduler: stopped")
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
