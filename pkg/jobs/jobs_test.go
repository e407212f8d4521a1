package jobs_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/pkg/jobs"
)

func newManager(t *testing.T, run jobs.Runner) (*jobs.Manager, *jobs.MemoryStore) {
	t.Helper()

	store := jobs.NewMemoryStore(time.Hour)
	t.Cleanup(func() { store.Close() })

	manager, err := jobs.NewManager(jobs.ManagerConfig{
		Store:        store,
		Run:          run,
		ErrorMessage: func(err error) string { return "Error: " + err.Error() },
	})
	require.NoError(t, err)
	return manager, store
}

func waitTerminal(t *testing.T, m *jobs.Manager, id string) models.Job {
	t.Helper()

	var job models.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Get(context.Background(), id)
		return err == nil && job.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestManager_Completes(t *testing.T) {
	manager, _ := newManager(t, func(ctx context.Context, videoID, kind string) (string, error) {
		return kind + " of " + videoID, nil
	})

	pool := jobs.NewPool(jobs.PoolConfig{Workers: 2, QueueSize: 4}, manager.Execute)
	pool.Start(context.Background())
	defer pool.Close()
	manager.Attach(pool)

	id, err := manager.Submit(context.Background(), "abc123", "summary")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	job := waitTerminal(t, manager, id)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "summary of abc123", job.Result)
	assert.Empty(t, job.Error)
	assert.Equal(t, int64(3), job.Version)
	assert.Equal(t, "abc123", job.VideoID)
	assert.Equal(t, "summary", job.Kind)
	assert.False(t, job.UpdatedAt.Before(job.CreatedAt))
}

func TestManager_Fails(t *testing.T) {
	manager, _ := newManager(t, func(ctx context.Context, videoID, kind string) (string, error) {
		return "", errors.New("quota exceeded")
	})

	pool := jobs.NewPool(jobs.PoolConfig{Workers: 1}, manager.Execute)
	pool.Start(context.Background())
	defer pool.Close()
	manager.Attach(pool)

	id, err := manager.Submit(context.Background(), "abc123", "insights")
	require.NoError(t, err)

	job := waitTerminal(t, manager, id)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, "Error: quota exceeded", job.Error)
	assert.Empty(t, job.Result)
}

func TestManager_QueueFull(t *testing.T) {
	manager, _ := newManager(t, func(ctx context.Context, videoID, kind string) (string, error) {
		return "ok", nil
	})

	// No workers started, so the single slot stays occupied.
	pool := jobs.NewPool(jobs.PoolConfig{Workers: 1, QueueSize: 1}, manager.Execute)
	manager.Attach(pool)

	first, err := manager.Submit(context.Background(), "v1", "summary")
	require.NoError(t, err)

	_, err = manager.Submit(context.Background(), "v2", "summary")
	assert.ErrorIs(t, err, jobs.ErrQueueFull)

	job, err := manager.Get(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.Status)
	assert.Equal(t, int64(1), job.Version)
}

func TestManager_InvalidInput(t *testing.T) {
	manager, store := newManager(t, func(ctx context.Context, videoID, kind string) (string, error) {
		return "ok", nil
	})
	manager.Attach(jobs.NewPool(jobs.PoolConfig{}, manager.Execute))

	_, err := manager.Submit(context.Background(), "  ", "summary")
	assert.ErrorIs(t, err, jobs.ErrInvalidJob)
	_, err = manager.Submit(context.Background(), "abc", "")
	assert.ErrorIs(t, err, jobs.ErrInvalidJob)
	assert.Equal(t, 0, store.Len())

	_, err = manager.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestNewManager_Errors(t *testing.T) {
	_, err := jobs.NewManager(jobs.ManagerConfig{})
	assert.Error(t, err)

	_, err = jobs.NewManager(jobs.ManagerConfig{Store: jobs.NewMemoryStore(0)})
	assert.Error(t, err)
}

func TestPool_DispatchWaitRunsDone(t *testing.T) {
	var handled atomic.Int32
	pool := jobs.NewPool(jobs.PoolConfig{Workers: 1, QueueSize: 1}, func(ctx context.Context, task jobs.Task) {
		handled.Add(1)
	})
	pool.Start(context.Background())
	defer pool.Close()

	done := make(chan struct{})
	require.NoError(t, pool.DispatchWait(context.Background(), jobs.Task{JobID: "j1"}, func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("done callback never ran")
	}
	assert.Equal(t, int32(1), handled.Load())
}

func TestPool_Closed(t *testing.T) {
	pool := jobs.NewPool(jobs.PoolConfig{}, func(context.Context, jobs.Task) {})
	pool.Start(context.Background())
	pool.Close()

	assert.ErrorIs(t, pool.Dispatch(context.Background(), jobs.Task{JobID: "x"}), jobs.ErrClosed)
	assert.ErrorIs(t, pool.DispatchWait(context.Background(), jobs.Task{JobID: "x"}, nil), jobs.ErrClosed)
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := jobs.NewMemoryStore(time.Hour)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.Put(ctx, models.Job{ID: "done", Status: models.JobCompleted, UpdatedAt: now}))
	require.NoError(t, store.Put(ctx, models.Job{ID: "busy", Status: models.JobProcessing, UpdatedAt: now}))

	assert.Equal(t, 0, store.Sweep(now.Add(30*time.Minute)))
	assert.Equal(t, 1, store.Sweep(now.Add(2*time.Hour)))

	_, err := store.Get(ctx, "done")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	job, err := store.Get(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, job.Status)
}

func TestMemoryStore_ExpiredInvisible(t *testing.T) {
	store := jobs.NewMemoryStore(time.Minute)
	defer store.Close()

	old := time.Now().Add(-time.Hour)
	require.NoError(t, store.Put(context.Background(), models.Job{ID: "old", Status: models.JobFailed, UpdatedAt: old}))

	_, err := store.Get(context.Background(), "old")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, err := jobs.NewRedisStore(ctx, jobs.RedisConfig{Addr: addr, Prefix: "vidrag:test:job:", TTL: time.Minute})
	require.NoError(t, err)
	defer store.Close()

	job := models.Job{ID: "redis-job", VideoID: "abc", Kind: "summary", Status: models.JobCompleted, Result: "done", Version: 3}
	require.NoError(t, store.Put(ctx, job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Result, got.Result)
	assert.Equal(t, job.Version, got.Version)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestAMQPQueue(t *testing.T) {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("RABBITMQ_URL not set")
	}

	manager, _ := newManager(t, func(ctx context.Context, videoID, kind string) (string, error) {
		return "via amqp", nil
	})

	queue, err := jobs.NewAMQPQueue(jobs.AMQPConfig{URL: url, Queue: "vidrag_jobs_test"})
	require.NoError(t, err)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := jobs.NewPool(jobs.PoolConfig{Workers: 1}, manager.Execute)
	pool.Start(ctx)
	defer pool.Close()
	go queue.Run(ctx, pool)

	manager.Attach(queue)
	id, err := manager.Submit(ctx, "abc123", "summary")
	require.NoError(t, err)

	job := waitTerminal(t, manager, id)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "via amqp", job.Result)
}
