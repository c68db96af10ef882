package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one periodic pass of an engine. Jobs must contain their own
// per-item failures; a panic-free return is the contract.
type Job func(ctx context.Context) TickStats

type scheduledJob struct {
	name     string
	interval time.Duration
	run      Job
}

// Scheduler drives the periodic engines (limit orders, DCA plans, interest
// accrual, risk monitoring) on independent tickers, one goroutine per job.
// Jobs never overlap with themselves; different jobs run concurrently and
// rely on row locks for isolation.
type Scheduler struct {
	jobs   []scheduledJob
	log    *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(log *zap.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Register adds a job. Call before Start.
func (s *Scheduler) Register(name string, interval time.Duration, job Job) {
	s.jobs = append(s.jobs, scheduledJob{name: name, interval: interval, run: job})
}

// Start launches every registered job and returns. Each job runs once
// immediately, then on its interval until the context ends.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

func (s *Scheduler) loop(ctx context.Context, job scheduledJob) {
	defer s.wg.Done()
	job.run(ctx)
	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("job stopped", zap.String("job", job.name))
			return
		case <-ticker.C:
			started := time.Now()
			stats := job.run(ctx)
			s.log.Debug("job pass finished",
				zap.String("job", job.name),
				zap.Duration("took", time.Since(started)),
				zap.Int("scanned", stats.Scanned),
				zap.Int("executed", stats.Executed),
				zap.Int("skipped", stats.Skipped),
				zap.Int("failed", stats.Failed))
		}
	}
}

// Stop cancels all jobs and waits for in-flight passes to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}
