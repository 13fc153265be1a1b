package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/siprems/backend-go/internal/domain"
)

// TaskFunc is a unit of background work. The context carries the hard time
// limit and cancellation; CPU-bound work is only expected to notice it
// between stages, so cancellation stays best-effort.
type TaskFunc func(ctx context.Context) (interface{}, error)

// Options configures the orchestrator.
type Options struct {
	Workers       int
	QueueSize     int
	Retry         RetryPolicy
	SoftTimeLimit time.Duration
	HardTimeLimit time.Duration
	// Synchronous runs each task inline during Submit. Used by tests and
	// by deployments without a separate worker process.
	Synchronous bool
}

// Orchestrator runs submitted tasks on a worker pool and tracks their
// state through the PENDING → STARTED → {SUCCESS | FAILURE | RETRY →
// STARTED | REVOKED} machine.
type Orchestrator struct {
	store Store
	opts  Options
	queue chan *taskJob

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	revoked map[string]bool

	runCtx context.Context
	wg     sync.WaitGroup
	sleep  func(ctx context.Context, d time.Duration) bool
}

type taskJob struct {
	id   string
	kind string
	fn   TaskFunc
}

func NewOrchestrator(store Store, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 256
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy(3)
	}
	return &Orchestrator{
		store:   store,
		opts:    opts,
		queue:   make(chan *taskJob, opts.QueueSize),
		cancels: make(map[string]context.CancelFunc),
		revoked: make(map[string]bool),
		runCtx:  context.Background(),
		sleep:   sleepCtx,
	}
}

// Start launches the worker pool. Not needed in synchronous mode.
func (o *Orchestrator) Start(ctx context.Context) {
	o.runCtx = ctx
	for i := 0; i < o.opts.Workers; i++ {
		o.wg.Add(1)
		go func(workerID int) {
			defer o.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.execute(job)
				}
			}
		}(i)
	}
	log.Info().Int("workers", o.opts.Workers).Msg("task workers started")
}

// Stop drains the queue and waits for in-flight tasks.
func (o *Orchestrator) Stop() {
	close(o.queue)
	o.wg.Wait()
}

// Submit registers a task as PENDING and queues it. Returns the task id.
func (o *Orchestrator) Submit(ctx context.Context, kind string, fn TaskFunc) (string, error) {
	now := time.Now().UTC()
	task := &domain.AsyncTask{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.Create(ctx, task); err != nil {
		return "", fmt.Errorf("failed to register task: %w", err)
	}

	job := &taskJob{id: task.ID, kind: kind, fn: fn}

	if o.opts.Synchronous {
		o.execute(job)
		return task.ID, nil
	}

	select {
	case o.queue <- job:
	default:
		o.setStatus(task.ID, domain.TaskFailure, nil, "task queue is full", 0)
		return task.ID, errors.New("task queue is full")
	}

	return task.ID, nil
}

// Status returns the task's current state.
func (o *Orchestrator) Status(ctx context.Context, id string) (*domain.AsyncTask, error) {
	return o.store.Get(ctx, id)
}

// Cancel revokes a task. Pending tasks never run; started tasks get their
// context canceled, which an in-progress numeric fit may not notice until
// its next stage boundary.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	task, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}

	o.mu.Lock()
	o.revoked[id] = true
	cancel := o.cancels[id]
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		log.Info().Str("task_id", id).Msg("cancellation signaled to running task")
		return nil
	}

	o.setStatus(id, domain.TaskRevoked, nil, "", task.Attempts)
	return nil
}

func (o *Orchestrator) execute(job *taskJob) {
	if o.isRevoked(job.id) {
		o.setStatus(job.id, domain.TaskRevoked, nil, "", 0)
		return
	}

	for attempt := 0; ; attempt++ {
		o.setStatus(job.id, domain.TaskStarted, nil, "", attempt+1)

		result, err := o.runAttempt(job)

		if err == nil {
			o.setStatus(job.id, domain.TaskSuccess, result, "", attempt+1)
			return
		}

		if o.isRevoked(job.id) {
			o.setStatus(job.id, domain.TaskRevoked, nil, "", attempt+1)
			return
		}

		if errors.Is(err, context.DeadlineExceeded) {
			log.Error().Str("task_id", job.id).Str("kind", job.kind).Msg("task killed by hard time limit")
			o.setStatus(job.id, domain.TaskFailure, nil, "hard time limit exceeded", attempt+1)
			return
		}

		if !o.opts.Retry.ShouldRetry(err, attempt) {
			log.Error().Err(err).Str("task_id", job.id).Str("kind", job.kind).Int("attempts", attempt+1).Msg("task failed")
			o.setStatus(job.id, domain.TaskFailure, nil, err.Error(), attempt+1)
			return
		}

		backoff := o.opts.Retry.Backoff(attempt)
		log.Warn().Err(err).Str("task_id", job.id).Dur("backoff", backoff).Int("attempt", attempt+1).Msg("task will retry")
		o.setStatus(job.id, domain.TaskRetry, nil, err.Error(), attempt+1)

		if !o.sleep(o.runCtx, backoff) || o.isRevoked(job.id) {
			o.setStatus(job.id, domain.TaskRevoked, nil, "", attempt+1)
			return
		}
	}
}

func (o *Orchestrator) runAttempt(job *taskJob) (interface{}, error) {
	runCtx := o.runCtx
	cancel := context.CancelFunc(func() {})
	if o.opts.HardTimeLimit > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, o.opts.HardTimeLimit)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}

	o.mu.Lock()
	o.cancels[job.id] = cancel
	o.mu.Unlock()

	var softTimer *time.Timer
	if o.opts.SoftTimeLimit > 0 {
		softTimer = time.AfterFunc(o.opts.SoftTimeLimit, func() {
			log.Warn().Str("task_id", job.id).Str("kind", job.kind).Dur("limit", o.opts.SoftTimeLimit).Msg("task exceeded soft time limit")
		})
	}

	result, err := job.fn(runCtx)

	if softTimer != nil {
		softTimer.Stop()
	}
	o.mu.Lock()
	delete(o.cancels, job.id)
	o.mu.Unlock()
	cancel()

	return result, err
}

func (o *Orchestrator) isRevoked(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.revoked[id]
}

func (o *Orchestrator) setStatus(id string, status domain.TaskStatus, result interface{}, errMsg string, attempts int) {
	task, err := o.store.Get(context.Background(), id)
	if err != nil {
		log.Error().Err(err).Str("task_id", id).Msg("failed to load task for status update")
		return
	}
	task.Status = status
	task.Result = result
	task.Error = errMsg
	task.Attempts = attempts
	task.UpdatedAt = time.Now().UTC()
	if err := o.store.Update(context.Background(), task); err != nil {
		log.Error().Err(err).Str("task_id", id).Msg("failed to update task status")
	}
}

// sleepCtx waits for d, returning false if ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
