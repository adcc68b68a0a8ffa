package schedule

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/spherepack/internal/packing"
)

// Processor runs one task. Implementations must not panic out; failures travel
// inside the Result.
type Processor interface {
	Process(ctx context.Context, t packing.Task) packing.Result
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, t packing.Task) packing.Result

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, t packing.Task) packing.Result { return f(ctx, t) }

// Pool is a fixed set of worker goroutines. One pool serves every batch of a
// file; RunBatch is the per-batch barrier.
type Pool struct {
	size    int
	jobs    chan packing.Task
	results chan packing.Result
	g       *errgroup.Group

	mu     sync.Mutex
	closed bool
}

// NewPool starts size workers. Tasks run under ctx; the scheduler passes a
// context that is never cancelled mid-batch.
func NewPool(ctx context.Context, size int, p Processor) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	pool := &Pool{
		size:    size,
		jobs:    make(chan packing.Task),
		results: make(chan packing.Result, size),
		g:       &errgroup.Group{},
	}
	for i := 0; i < size; i++ {
		pool.g.Go(func() error {
			for t := range pool.jobs {
				pool.results <- p.Process(ctx, t)
			}
			return nil
		})
	}
	return pool, nil
}

// Size is the number of workers.
func (p *Pool) Size() int { return p.size }

// RunBatch hands every task to the workers and blocks until all of them have
// returned. Results come back in completion order.
func (p *Pool) RunBatch(tasks []packing.Task) ([]packing.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("pool closed")
	}

	go func() {
		for _, t := range tasks {
			p.jobs <- t
		}
	}()

	out := make([]packing.Result, 0, len(tasks))
	for range tasks {
		out = append(out, <-p.results)
	}
	return out, nil
}

// Close stops the workers and waits for them to exit.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.jobs)
	return p.g.Wait()
}
