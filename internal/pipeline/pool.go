package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrPoolClosed is returned by Submit after Close
var ErrPoolClosed = errors.New("pool closed")

// Job is one unit of work run by a pool worker
type Job func(ctx context.Context)

// Pool runs jobs on a fixed number of workers fed by a bounded queue.
// Submit blocks while the queue is full.
type Pool struct {
	logger zerolog.Logger
	name   string
	size   int
	jobs   chan Job

	mu      sync.Mutex
	started bool
	closed  bool
	group   errgroup.Group
}

func NewPool(logger zerolog.Logger, name string, size, queue int) *Pool {
	return &Pool{
		logger: logger.With().Str("pool", name).Logger(),
		name:   name,
		size:   max(size, 1),
		jobs:   make(chan Job, max(queue, 0)),
	}
}

// Start launches the workers. Jobs receive ctx, which should not carry run
// cancellation: a job that has been picked up runs to completion.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("pool %s already started", p.name)
	}
	p.started = true

	for i := 0; i < p.size; i++ {
		p.group.Go(func() error {
			p.worker(ctx)
			return nil
		})
	}

	p.logger.Debug().Int("workers", p.size).Int("queue", cap(p.jobs)).Msg("pool started")
	return nil
}

// Submit enqueues job, blocking until a slot frees up or ctx is done
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// Close stops accepting jobs, drains the queue and waits for the workers.
// No Submit may be in progress.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	_ = p.group.Wait()
	p.logger.Debug().Msg("pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	for job := range p.jobs {
		job(ctx)
	}
}
