// Package scheduler runs named background jobs, such as the periodic
// orphan-image sweep.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is a scheduled job body.
type TaskFn func()

// Scheduler runs named jobs either on a fixed interval or once after a
// delay. Registering a name again replaces the previous job.
type Scheduler struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	jobs   map[string]*job
	logger *zap.Logger
}

type job struct {
	cancel   context.CancelFunc
	periodic bool
}

// New creates a stopped-when-told Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
		logger: logger,
	}
}

// AddTicker runs fn every interval until the job is removed or the
// scheduler stops.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.register(name, true, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(name, fn)
			case <-ctx.Done():
				return
			}
		}
	})
	s.logger.Info("job scheduled",
		zap.String("job", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.register(name, false, func(ctx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.run(name, fn)
			s.Remove(name)
		case <-ctx.Done():
		}
	})
}

func (s *Scheduler) register(name string, periodic bool, loop func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[name]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.jobs[name] = &job{cancel: cancel, periodic: periodic}
	go loop(ctx)
}

// run executes one job invocation, containing panics so a bad job cannot
// take its loop down.
func (s *Scheduler) run(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				zap.String("job", name), zap.Any("panic", r))
		}
	}()
	fn()
}

// Remove cancels the named job.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		j.cancel()
		delete(s.jobs, name)
	}
}

// Stop cancels every job. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.cancel()
}

// ListTickers returns the names of registered periodic jobs, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name, j := range s.jobs {
		if j.periodic {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
