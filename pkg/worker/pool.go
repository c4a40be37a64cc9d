package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-summarizer/pkg/logger"
)

var (
	ErrPoolFull    = errors.New("worker pool queue is full")
	ErrPoolClosed  = errors.New("worker pool is stopped")
	ErrPoolStarted = errors.New("worker pool already started")
)

// Handler runs one job.
type Handler func(ctx context.Context, documentID string) error

// Pool is a bounded in-process dispatcher. Jobs run on the context given to
// Start, never on the caller's.
type Pool struct {
	workers int
	jobs    chan string
	logger  logger.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	group   *errgroup.Group
}

func NewPool(workers, queueSize int, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan string, queueSize),
		logger:  log.Named("pool"),
	}
}

func (p *Pool) Start(ctx context.Context, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if p.started {
		return ErrPoolStarted
	}
	p.started = true

	p.group = &errgroup.Group{}
	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			for id := range p.jobs {
				p.run(ctx, h, id)
			}
			return nil
		})
	}

	p.logger.Info("Worker pool started",
		logger.Int("workers", p.workers),
		logger.Int("queueSize", cap(p.jobs)),
	)
	return nil
}

func (p *Pool) run(ctx context.Context, h Handler, id string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Job panicked",
				logger.DocumentID(id),
				logger.String("panic", fmt.Sprint(r)),
				logger.Stack(),
			)
		}
	}()
	if err := h(ctx, id); err != nil {
		p.logger.Error("Job failed", logger.DocumentID(id), logger.Error(err))
	}
}

// Dispatch queues a job without blocking.
func (p *Pool) Dispatch(_ context.Context, documentID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- documentID:
		return nil
	default:
		p.logger.Warn("Dropping job, pool is full", logger.DocumentID(documentID))
		return ErrPoolFull
	}
}

// Stop refuses new jobs and waits for queued ones to finish.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	group := p.group
	p.mu.Unlock()

	if group != nil {
		return group.Wait()
	}
	return nil
}
