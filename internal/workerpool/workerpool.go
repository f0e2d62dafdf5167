// Package workerpool runs a fixed set of workers over one bounded queue.
// Each job borrows one resource handle for its whole run and returns it on
// every exit path.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gotcp/webserver/internal/logger"
	"github.com/gotcp/webserver/internal/resource"
)

var (
	ErrInvalidThreads     = errors.New("worker count must be positive")
	ErrInvalidMaxRequests = errors.New("max queued requests must be positive")
)

// Resources lends handles to jobs. *resource.Pool implements it.
type Resources interface {
	Acquire() (resource.Handle, bool)
	Release(h resource.Handle) bool
}

// Handler processes one item. h is nil when no handle was free.
type Handler[T any] func(item T, h resource.Handle)

// PanicHandler is told about a job that panicked, after its handle has been
// returned.
type PanicHandler[T any] func(item T, recovered any)

type Pool[T any] struct {
	queue     *Queue[T]
	resources Resources
	handler   Handler[T]
	onPanic   PanicHandler[T]
	threads   int
	stopped   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New starts threads workers. Append refuses items once maxRequests are
// queued. resources may be nil, in which case jobs run without a handle.
func New[T any](threads, maxRequests int, resources Resources, handler Handler[T]) (*Pool[T], error) {
	return NewWithPanicHandler(threads, maxRequests, resources, handler, nil)
}

func NewWithPanicHandler[T any](threads, maxRequests int, resources Resources, handler Handler[T], onPanic PanicHandler[T]) (*Pool[T], error) {
	if threads <= 0 {
		return nil, ErrInvalidThreads
	}
	if maxRequests <= 0 {
		return nil, ErrInvalidMaxRequests
	}

	var p = &Pool[T]{
		queue:     NewQueue[T](maxRequests),
		resources: resources,
		handler:   handler,
		onPanic:   onPanic,
		threads:   threads,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.wg.Add(threads)
	for i := 0; i < threads; i++ {
		go p.worker(i)
	}
	return p, nil
}

// Append queues item without blocking. It returns false when the queue is
// full or the pool is stopped; the item is then still the caller's.
func (p *Pool[T]) Append(item T) bool {
	if p.stopped.Load() {
		return false
	}
	return p.queue.Offer(item)
}

func (p *Pool[T]) Len() int {
	return p.queue.Len()
}

func (p *Pool[T]) Threads() int {
	return p.threads
}

// Stop tells the workers to exit after their current job and waits for them
// or for ctx. Items still queued are not processed.
func (p *Pool[T]) Stop(ctx context.Context) error {
	p.stopped.Store(true)
	p.cancel()

	var done = make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for workers: %w", ctx.Err())
	}
}

func (p *Pool[T]) worker(id int) {
	defer p.wg.Done()
	logger.Debug("worker %d started", id)
	for {
		item, err := p.queue.Take(p.ctx)
		if err != nil || p.stopped.Load() {
			break
		}
		p.run(id, item)
	}
	logger.Debug("worker %d stopped", id)
}

func (p *Pool[T]) run(id int, item T) {
	var h resource.Handle
	if p.resources != nil {
		h, _ = p.resources.Acquire()
	}
	defer func() {
		var r = recover()
		if h != nil {
			p.resources.Release(h)
		}
		if r != nil {
			logger.Error("worker %d: job panicked: %v", id, r)
			if p.onPanic != nil {
				p.onPanic(item, r)
			}
		}
	}()
	p.handler(item, h)
}
