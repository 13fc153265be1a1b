package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siprems/backend-go/internal/domain"
)

func newSyncOrchestrator(t *testing.T, retry RetryPolicy) (*Orchestrator, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	o := NewOrchestrator(store, Options{
		Synchronous: true,
		Retry:       retry,
	})
	// Skip real backoff waits.
	o.sleep = func(ctx context.Context, d time.Duration) bool { return true }
	return o, store
}

func TestSubmitRunsToSuccess(t *testing.T) {
	o, _ := newSyncOrchestrator(t, DefaultRetryPolicy(3))

	id, err := o.Submit(context.Background(), "train_product", func(ctx context.Context) (interface{}, error) {
		return "done", nil
	})
	require.NoError(t, err)

	task, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskSuccess, task.Status)
	assert.Equal(t, "done", task.Result)
	assert.Equal(t, 1, task.Attempts)
}

func TestSubmitNonTransientFailsImmediately(t *testing.T) {
	o, _ := newSyncOrchestrator(t, DefaultRetryPolicy(3))

	calls := 0
	id, err := o.Submit(context.Background(), "train_product", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("unknown product")
	})
	require.NoError(t, err)

	task, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailure, task.Status)
	assert.Equal(t, "unknown product", task.Error)
	assert.Equal(t, 1, calls)
}

func TestSubmitRetriesTransientFailure(t *testing.T) {
	o, _ := newSyncOrchestrator(t, DefaultRetryPolicy(3))

	calls := 0
	id, err := o.Submit(context.Background(), "train_product", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, domain.Transient(errors.New("connection reset"))
	})
	require.NoError(t, err)

	task, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailure, task.Status)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, task.Attempts)
}

func TestSubmitRecoversOnRetry(t *testing.T) {
	o, _ := newSyncOrchestrator(t, DefaultRetryPolicy(3))

	calls := 0
	id, err := o.Submit(context.Background(), "train_product", func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 2 {
			return nil, domain.Transient(errors.New("connection reset"))
		}
		return "recovered", nil
	})
	require.NoError(t, err)

	task, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskSuccess, task.Status)
	assert.Equal(t, "recovered", task.Result)
	assert.Equal(t, 2, task.Attempts)
}

func TestHardTimeLimitKillsTask(t *testing.T) {
	store := NewMemoryStore()
	o := NewOrchestrator(store, Options{
		Synchronous:   true,
		Retry:         DefaultRetryPolicy(3),
		HardTimeLimit: 10 * time.Millisecond,
	})

	id, err := o.Submit(context.Background(), "train_all", func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	task, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailure, task.Status)
	assert.Equal(t, "hard time limit exceeded", task.Error)
}

func TestCancelPendingTask(t *testing.T) {
	store := NewMemoryStore()
	// No workers started, so the submitted job stays queued.
	o := NewOrchestrator(store, Options{Retry: DefaultRetryPolicy(3)})

	id, err := o.Submit(context.Background(), "train_product", func(ctx context.Context) (interface{}, error) {
		t.Fatal("pending task must not run")
		return nil, nil
	})
	require.NoError(t, err)

	task, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, task.Status)

	require.NoError(t, o.Cancel(context.Background(), id))

	task, err = o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskRevoked, task.Status)
}

func TestCancelTerminalTaskIsNoOp(t *testing.T) {
	o, _ := newSyncOrchestrator(t, DefaultRetryPolicy(3))

	id, err := o.Submit(context.Background(), "train_product", func(ctx context.Context) (interface{}, error) {
		return "done", nil
	})
	require.NoError(t, err)

	require.NoError(t, o.Cancel(context.Background(), id))

	task, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskSuccess, task.Status)
}

func TestCancelUnknownTask(t *testing.T) {
	o, _ := newSyncOrchestrator(t, DefaultRetryPolicy(3))

	err := o.Cancel(context.Background(), "no-such-task")
	assert.True(t, errors.Is(err, domain.ErrTaskNotFound))
}

func TestStatusUnknownTask(t *testing.T) {
	o, _ := newSyncOrchestrator(t, DefaultRetryPolicy(3))

	_, err := o.Status(context.Background(), "no-such-task")
	assert.True(t, errors.Is(err, domain.ErrTaskNotFound))
}

func TestWorkerPoolExecutesQueuedTasks(t *testing.T) {
	store := NewMemoryStore()
	o := NewOrchestrator(store, Options{Workers: 2, Retry: DefaultRetryPolicy(1)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	done := make(chan struct{})
	id, err := o.Submit(context.Background(), "train_product", func(ctx context.Context) (interface{}, error) {
		defer close(done)
		return "ok", nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued task never ran")
	}

	require.Eventually(t, func() bool {
		task, err := o.Status(context.Background(), id)
		return err == nil && task.Status == domain.TaskSuccess
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, 1*time.Second, ExponentialBackoff(0))
	assert.Equal(t, 2*time.Second, ExponentialBackoff(1))
	assert.Equal(t, 512*time.Second, ExponentialBackoff(9))
	assert.Equal(t, 600*time.Second, ExponentialBackoff(10))
	assert.Equal(t, 600*time.Second, ExponentialBackoff(60))
}

func TestShouldRetry(t *testing.T) {
	policy := DefaultRetryPolicy(3)

	assert.True(t, policy.ShouldRetry(domain.Transient(errors.New("boom")), 0))
	assert.True(t, policy.ShouldRetry(domain.Transient(errors.New("boom")), 1))
	assert.False(t, policy.ShouldRetry(domain.Transient(errors.New("boom")), 2))
	assert.False(t, policy.ShouldRetry(errors.New("boom"), 0))
}

func TestMemoryTaskStore(t *testing.T) {
	store := NewMemoryStore()

	task := &domain.AsyncTask{ID: "t-1", Kind: "train_product", Status: domain.TaskPending}
	require.NoError(t, store.Create(context.Background(), task))

	// Mutating the caller's copy must not leak into the store.
	task.Status = domain.TaskFailure

	got, err := store.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, got.Status)

	got.Status = domain.TaskSuccess
	require.NoError(t, store.Update(context.Background(), got))

	got, err = store.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskSuccess, got.Status)
}
