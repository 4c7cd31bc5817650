package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CollectRunner interface {
	Collect(ctx context.Context) (CollectionReport, error)
}

type SchedulerConfig struct {
	Interval     time.Duration
	PollInterval time.Duration
	MaxAttempts  int
	Backoff      time.Duration
	RunOnStart   bool
}

// Scheduler enqueues a collect job every interval and runs due jobs from the durable queue. Jobs
// are independent: a failed or slow job never delays the next trigger.
type Scheduler struct {
	jobs      domain.JobQueue
	collector CollectRunner
	cfg       SchedulerConfig
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(jobs domain.JobQueue, collector CollectRunner, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Scheduler{jobs: jobs, collector: collector, cfg: cfg, logger: logger}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	if err := s.recoverAbandoned(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runTrigger(runCtx)
	}()
	go func() {
		defer wg.Done()
		s.runWorker(runCtx)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	s.logger.Info("scheduler started", zap.Duration("interval", s.cfg.Interval), zap.Int("max_attempts", s.cfg.MaxAttempts))
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timeout stopping scheduler")
	}
}

// Trigger enqueues one collect job due immediately.
func (s *Scheduler) Trigger(ctx context.Context) (*domain.Job, error) {
	job := &domain.Job{
		ID:          uuid.NewString(),
		Type:        domain.JobTypeCollect,
		Status:      domain.JobPending,
		MaxAttempts: s.cfg.MaxAttempts,
		RunAfter:    time.Now().UTC(),
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue collect job: %w", err)
	}
	s.logger.Info("collect job enqueued", zap.String("job_id", job.ID))
	return job, nil
}

func (s *Scheduler) runTrigger(ctx context.Context) {
	if s.cfg.RunOnStart {
		s.trigger(ctx)
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.recoverAbandoned(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("job recovery failed", zap.Error(err))
			}
			s.trigger(ctx)
		}
	}
}

// recoverAbandoned returns abandoned running jobs to the queue.
func (s *Scheduler) recoverAbandoned(ctx context.Context) error {
	recovered, err := s.jobs.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	if recovered > 0 {
		s.logger.Warn("recovered interrupted jobs", zap.Int("count", recovered))
	}
	return nil
}

func (s *Scheduler) trigger(ctx context.Context) {
	if _, err := s.Trigger(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("failed to schedule collection", zap.Error(err))
	}
}

func (s *Scheduler) runWorker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		for {
			ran, err := s.RunOnce(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Error("job queue poll failed", zap.Error(err))
			}
			if !ran || ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and runs one due collect job. It reports whether a job was claimed.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	job, err := s.jobs.ClaimNext(ctx, domain.JobTypeCollect)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	logger := s.logger.With(zap.String("job_id", job.ID), zap.Int("attempt", job.Attempts))
	logger.Info("collect job started")

	report, runErr := s.collector.Collect(ctx)
	if runErr == nil {
		if err := s.jobs.Complete(ctx, job.ID); err != nil {
			return true, fmt.Errorf("complete job %s: %w", job.ID, err)
		}
		logger.Info("collect job completed", zap.String("summary", report.Summary()))
		return true, nil
	}

	// A cancelled run is left running and picked up by Recover once its lease expires.
	if ctx.Err() != nil {
		return true, nil
	}

	backoff := s.backoff(job.Attempts)
	exhausted, err := s.jobs.Fail(ctx, job.ID, runErr.Error(), backoff)
	if err != nil {
		return true, fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	if exhausted {
		logger.Error("collect job failed permanently", zap.Int("max_attempts", job.MaxAttempts), zap.Error(runErr))
		return true, nil
	}
	logger.Warn("collect job failed, retrying", zap.Duration("backoff", backoff), zap.Error(runErr))
	return true, nil
}

// backoff doubles the base delay for each attempt already made.
func (s *Scheduler) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := s.cfg.Backoff
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}
