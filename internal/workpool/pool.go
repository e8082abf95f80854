// Package workpool bounds the number of backend calls in flight.
package workpool

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/systmms/secretproxy/internal/metrics"
)

// DefaultSize is used when a pool is created with size 0.
const DefaultSize = 16

// Pool runs functions with at most Size of them executing at once.
// Callers beyond that wait for a slot or for their context to end.
type Pool struct {
	sem     *semaphore.Weighted
	size    int
	inUse   atomic.Int64
	metrics *metrics.Metrics
}

// New creates a pool of the given size. m may be nil.
func New(size int, m *metrics.Metrics) (*Pool, error) {
	if size < 0 {
		return nil, fmt.Errorf("worker pool size must be non-negative, got %d", size)
	}
	if size == 0 {
		size = DefaultSize
	}
	m.WorkersSize(size)
	return &Pool{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		metrics: m,
	}, nil
}

// Do waits for a free slot then runs fn on the calling goroutine. If ctx
// ends before a slot frees up, fn is not run and ctx.Err() is returned.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.inUse.Add(1)
	p.metrics.WorkerAcquired()
	defer func() {
		p.metrics.WorkerReleased()
		p.inUse.Add(-1)
		p.sem.Release(1)
	}()

	return fn(ctx)
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// InUse returns the number of slots currently held.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}
