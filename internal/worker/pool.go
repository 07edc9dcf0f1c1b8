package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
)

var (
	ErrNotStarted     = errors.New("worker pool not started")
	ErrAlreadyStarted = errors.New("worker pool already started")
)

// Task is one unit of probe work. It receives the pool's context.
type Task func(ctx context.Context)

// Status is a point-in-time view of the pool counters.
type Status struct {
	Size      int
	Submitted int64
	Completed int64
	Panicked  int64
}

// Pool runs submitted tasks on at most Size goroutines. Wait is the explicit
// join: it returns only after every accepted task has finished.
type Pool struct {
	size   int
	logger *logger.Logger

	mu     sync.Mutex
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

func NewPool(size int, log *logger.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Pool{
		size:   size,
		logger: log.WithComponent("worker_pool"),
	}
}

func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.group != nil {
		return ErrAlreadyStarted
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.group = new(errgroup.Group)
	p.group.SetLimit(p.size)

	p.logger.Debugw("Starting worker pool", "workers", p.size)
	return nil
}

// Submit queues task, blocking while every worker is busy. Once the pool's
// context is done new tasks are refused with its error.
func (p *Pool) Submit(name string, task Task) error {
	p.mu.Lock()
	group, ctx := p.group, p.ctx
	p.mu.Unlock()

	if group == nil {
		return ErrNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.submitted.Add(1)
	group.Go(func() error {
		defer p.completed.Add(1)
		defer func() {
			if r := recover(); r != nil {
				p.panicked.Add(1)
				p.logger.LogPanic(ctx, r, "worker.task", "task", name)
			}
		}()
		task(ctx)
		return nil
	})
	return nil
}

// Wait blocks until all submitted tasks have returned, then resets the pool
// so it can be started again.
func (p *Pool) Wait() error {
	p.mu.Lock()
	group, cancel := p.group, p.cancel
	p.mu.Unlock()

	if group == nil {
		return ErrNotStarted
	}

	err := group.Wait()
	cancel()

	p.mu.Lock()
	p.group = nil
	p.ctx = nil
	p.cancel = nil
	p.mu.Unlock()

	p.logger.Debugw("Worker pool drained",
		"submitted", p.submitted.Load(),
		"completed", p.completed.Load(),
		"panicked", p.panicked.Load(),
	)
	if err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	return nil
}

// Stop cancels in-flight tasks and waits for them to return.
func (p *Pool) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	return p.Wait()
}

func (p *Pool) Status() Status {
	return Status{
		Size:      p.size,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}
