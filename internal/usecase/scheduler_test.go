package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"go.uber.org/zap"
)

type memoryJobQueue struct {
	mu           sync.Mutex
	jobs         map[string]*domain.Job
	recovered    int
	recoverCalls int
	backoffs     []time.Duration
}

func newMemoryJobQueue() *memoryJobQueue {
	return &memoryJobQueue{jobs: make(map[string]*domain.Job)}
}

func (q *memoryJobQueue) Enqueue(ctx context.Context, job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored := *job
	stored.CreatedAt = time.Now()
	q.jobs[job.ID] = &stored
	return nil
}

func (q *memoryJobQueue) ClaimNext(ctx context.Context, jobType string) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []*domain.Job
	now := time.Now()
	for _, job := range q.jobs {
		if job.Type == jobType && job.Status == domain.JobPending && !job.RunAfter.After(now) {
			due = append(due, job)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAfter.Before(due[j].RunAfter) })
	due[0].Status = domain.JobRunning
	due[0].Attempts++
	claimed := *due[0]
	return &claimed, nil
}

func (q *memoryJobQueue) Complete(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobCompleted
	return nil
}

func (q *memoryJobQueue) Fail(ctx context.Context, id string, errMsg string, backoff time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	q.backoffs = append(q.backoffs, backoff)
	job.LastError = errMsg
	if job.Attempts >= job.MaxAttempts {
		job.Status = domain.JobFailed
		return true, nil
	}
	job.Status = domain.JobPending
	// Due immediately so tests can drive retries without waiting.
	job.RunAfter = time.Now()
	return false, nil
}

func (q *memoryJobQueue) Recover(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, job := range q.jobs {
		if job.Status == domain.JobRunning {
			job.Status = domain.JobPending
			count++
		}
	}
	q.recovered += count
	q.recoverCalls++
	return count, nil
}

func (q *memoryJobQueue) recoverCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.recoverCalls
}

func (q *memoryJobQueue) job(id string) domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.jobs[id]
}

type fakeCollector struct {
	calls atomic.Int32
	err   error
}

func (c *fakeCollector) Collect(ctx context.Context) (CollectionReport, error) {
	c.calls.Add(1)
	return CollectionReport{Pairs: 1, Fetched: 1}, c.err
}

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     time.Hour,
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  3,
		Backoff:      time.Second,
	}
}

func TestScheduler_RunOnceCompletesJob(t *testing.T) {
	queue := newMemoryJobQueue()
	collector := &fakeCollector{}
	scheduler := NewScheduler(queue, collector, testSchedulerConfig(), zap.NewNop())

	job, err := scheduler.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if job.MaxAttempts != 3 || job.Type != domain.JobTypeCollect {
		t.Fatalf("unexpected job %+v", job)
	}

	ran, err := scheduler.RunOnce(context.Background())
	if err != nil || !ran {
		t.Fatalf("RunOnce: ran=%v err=%v", ran, err)
	}
	if got := queue.job(job.ID).Status; got != domain.JobCompleted {
		t.Fatalf("expected completed job, got %s", got)
	}

	ran, err = scheduler.RunOnce(context.Background())
	if err != nil || ran {
		t.Fatalf("expected empty queue, ran=%v err=%v", ran, err)
	}
}

func TestScheduler_RetriesWithBackoffThenFails(t *testing.T) {
	queue := newMemoryJobQueue()
	collector := &fakeCollector{err: errors.New("db unavailable")}
	scheduler := NewScheduler(queue, collector, testSchedulerConfig(), zap.NewNop())

	job, err := scheduler.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	for i := 0; i < 3; i++ {
		if ran, err := scheduler.RunOnce(context.Background()); err != nil || !ran {
			t.Fatalf("attempt %d: ran=%v err=%v", i+1, ran, err)
		}
	}

	stored := queue.job(job.ID)
	if stored.Status != domain.JobFailed || stored.Attempts != 3 {
		t.Fatalf("expected failed job after 3 attempts, got %+v", stored)
	}
	if stored.LastError != "db unavailable" {
		t.Fatalf("unexpected last error %q", stored.LastError)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, backoff := range want {
		if queue.backoffs[i] != backoff {
			t.Fatalf("backoff %d = %s, want %s", i, queue.backoffs[i], backoff)
		}
	}

	// A failed job does not block the next trigger.
	collector.err = nil
	next, _ := scheduler.Trigger(context.Background())
	if ran, err := scheduler.RunOnce(context.Background()); err != nil || !ran {
		t.Fatalf("next job: ran=%v err=%v", ran, err)
	}
	if got := queue.job(next.ID).Status; got != domain.JobCompleted {
		t.Fatalf("expected next job completed, got %s", got)
	}
}

func TestScheduler_StartRecoversAndRunsOnStart(t *testing.T) {
	queue := newMemoryJobQueue()
	_ = queue.Enqueue(context.Background(), &domain.Job{ID: "stale", Type: domain.JobTypeCollect, Status: domain.JobRunning, MaxAttempts: 3})

	collector := &fakeCollector{}
	cfg := testSchedulerConfig()
	cfg.RunOnStart = true
	scheduler := NewScheduler(queue, collector, cfg, zap.NewNop())

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(scheduler.Stop)

	if err := scheduler.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for collector.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected recovered and start-up jobs to run, got %d runs", collector.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if queue.recovered != 1 {
		t.Fatalf("expected 1 recovered job, got %d", queue.recovered)
	}
	if got := queue.job("stale").Status; got != domain.JobCompleted {
		t.Fatalf("expected recovered job completed, got %s", got)
	}
}

func TestScheduler_RecoversOnEveryTrigger(t *testing.T) {
	queue := newMemoryJobQueue()
	collector := &fakeCollector{}
	cfg := testSchedulerConfig()
	cfg.Interval = 20 * time.Millisecond
	scheduler := NewScheduler(queue, collector, cfg, zap.NewNop())

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(scheduler.Stop)

	// A job abandoned after start-up is reclaimed without a restart.
	_ = queue.Enqueue(context.Background(), &domain.Job{ID: "abandoned", Type: domain.JobTypeCollect, Status: domain.JobRunning, MaxAttempts: 3})

	deadline := time.Now().Add(2 * time.Second)
	for queue.recoverCount() < 2 || queue.job("abandoned").Status != domain.JobCompleted {
		if time.Now().After(deadline) {
			t.Fatalf("expected abandoned job recovered and run, recover calls=%d status=%s",
				queue.recoverCount(), queue.job("abandoned").Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler_StopRightAfterStart(t *testing.T) {
	queue := newMemoryJobQueue()
	scheduler := NewScheduler(queue, &fakeCollector{}, testSchedulerConfig(), zap.NewNop())

	for i := 0; i < 50; i++ {
		if err := scheduler.Start(context.Background()); err != nil {
			t.Fatalf("Start #%d: %v", i, err)
		}
		scheduler.Stop()
	}
	// Stop without a running scheduler is a no-op.
	scheduler.Stop()
}
