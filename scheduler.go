package ridinglookup

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SchedulerConfig controls how aggressively the queue is drained.
type SchedulerConfig struct {
	Workers   int
	Interval  time.Duration
	BatchSize int
}

// NewSchedulerConfig returns the defaults used by `serve`.
func NewSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:   2,
		Interval:  time.Second,
		BatchSize: 10,
	}
}

/*
Scheduler is the in-process processing trigger. A sweeper goroutine promotes due
retries every Interval; worker goroutines call ProcessNext(BatchSize) on every tick
and keep draining while they get full batches back. Workers never share a job since
claiming happens inside the queue's actor.
*/
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	queue  *JobQueueCoordinator
	config SchedulerConfig
	wake   chan struct{}
}

// NewScheduler starts the sweeper and the workers. They stop when ctx ends or Close is called.
func NewScheduler(ctx context.Context, queue *JobQueueCoordinator, config SchedulerConfig) *Scheduler {
	defaults := NewSchedulerConfig()
	if config.Workers < 1 {
		config.Workers = defaults.Workers
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize < 1 {
		config.BatchSize = defaults.BatchSize
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		queue:  queue,
		config: config,
		wake:   make(chan struct{}, config.Workers),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweep()
	}()

	for i := 0; i < config.Workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.work(id)
		}(i + 1)
	}

	Logger().Info("scheduler started", "workers", config.Workers, "interval", config.Interval)
	return s
}

func (s *Scheduler) sweep() {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			promoted, err := s.queue.PromoteDue(s.ctx)
			if err != nil {
				if !s.stopping(err) {
					Logger().Error("retry sweep failed", "err", err)
				}
				continue
			}
			if promoted > 0 {
				s.notify()
			}
		}
	}
}

func (s *Scheduler) notify() {
	for i := 0; i < s.config.Workers; i++ {
		select {
		case s.wake <- struct{}{}:
		default:
			return
		}
	}
}

func (s *Scheduler) work(id int) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}

		for s.ctx.Err() == nil {
			outcomes, err := s.queue.ProcessNext(s.ctx, s.config.BatchSize)
			if err != nil {
				if !s.stopping(err) {
					Logger().Error("processing pass failed", "worker", id, "err", err)
				}
				break
			}
			if len(outcomes) > 0 {
				Logger().Debug("processing pass", "worker", id, "jobs", len(outcomes))
			}
			if len(outcomes) < s.config.BatchSize {
				break
			}
		}
	}
}

func (s *Scheduler) stopping(err error) bool {
	return s.ctx.Err() != nil || errors.Is(err, ErrClosed)
}

// Close stops the sweeper and workers and waits for in-flight passes to finish.
func (s *Scheduler) Close() {
	if s == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	Logger().Info("scheduler stopped")
}
