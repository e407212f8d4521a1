package jobs

import (
	"context"
	"log/slog"
	"sync"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

type PoolConfig struct {
	Workers   int
	QueueSize int
	Logger    *slog.Logger
}

type item struct {
	task Task
	done func()
}

// Pool runs tasks on a fixed number of workers fed by a bounded queue.
type Pool struct {
	config  PoolConfig
	handler func(context.Context, Task)
	queue   chan item
	quit    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewPool(config PoolConfig, handler func(context.Context, Task)) *Pool {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Pool{
		config:  config,
		handler: handler,
		queue:   make(chan item, config.QueueSize),
		quit:    make(chan struct{}),
	}
}

// Start launches the workers. They stop when ctx ends or Close is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
	p.config.Logger.InfoContext(ctx, "job pool started", "workers", p.config.Workers, "queue_size", p.config.QueueSize)
}

// Dispatch enqueues without blocking.
func (p *Pool) Dispatch(ctx context.Context, task Task) error {
	select {
	case <-p.quit:
		return ErrClosed
	default:
	}

	select {
	case p.queue <- item{task: task}:
		return nil
	default:
		return ErrQueueFull
	}
}

// DispatchWait blocks until the task is queued or ctx ends. done, if not nil,
// runs after the task has been handled.
func (p *Pool) DispatchWait(ctx context.Context, task Task, done func()) error {
	select {
	case <-p.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.queue <- item{task: task, done: done}:
		return nil
	}
}

// Close stops the workers after their current task. Queued tasks are dropped.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case it := <-p.queue:
			p.handler(ctx, it.task)
			if it.done != nil {
				it.done()
			}
		}
	}
}
