// Package resource lends a fixed set of interchangeable backend handles to
// workers. Acquire never blocks: an empty pool is a normal, checked outcome.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidCapacity    = errors.New("resource pool capacity must be positive")
	ErrHandlesOutstanding = errors.New("resource pool has handles outstanding")
	ErrClosed             = errors.New("resource pool is closed")
)

// Handle is one backend session.
type Handle interface {
	ID() int
	Close() error
}

// DialFunc establishes the handle with the given id.
type DialFunc func(ctx context.Context, id int) (Handle, error)

type Pool struct {
	mu          sync.Mutex
	free        []Handle
	all         []Handle
	capacity    int
	outstanding int
	closed      bool
}

// New establishes capacity handles up front. If any dial fails, the handles
// made so far are closed and the error is returned.
func New(ctx context.Context, capacity int, dial DialFunc) (*Pool, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	var p = &Pool{
		free:     make([]Handle, 0, capacity),
		all:      make([]Handle, 0, capacity),
		capacity: capacity,
	}
	for i := 0; i < capacity; i++ {
		h, err := dial(ctx, i)
		if err == nil && h == nil {
			err = fmt.Errorf("dial returned no handle")
		}
		if err != nil {
			for _, made := range p.all {
				_ = made.Close()
			}
			return nil, fmt.Errorf("establish resource handle %d of %d: %w", i+1, capacity, err)
		}
		p.all = append(p.all, h)
		p.free = append(p.free, h)
	}
	return p, nil
}

// Acquire takes a free handle. ok is false when none is free or the pool is
// closed.
func (p *Pool) Acquire() (Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false
	}
	var n = len(p.free)
	if n == 0 {
		return nil, false
	}
	var h = p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	p.outstanding++
	return h, true
}

// Release returns h to the free set and reports false only for a nil handle.
// A handle that was not checked out is still accepted; the outstanding count
// then drops below zero so that outstanding + free stays equal to capacity.
func (p *Pool) Release(h Handle) bool {
	if h == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, h)
	p.outstanding--
	return true
}

func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

func (p *Pool) Capacity() int {
	return p.capacity
}

// Close closes every handle. It refuses while any handle is checked out.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.outstanding > 0 {
		return fmt.Errorf("%w: %d", ErrHandlesOutstanding, p.outstanding)
	}
	p.closed = true

	var errs []error
	for _, h := range p.all {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close handle %d: %w", h.ID(), err))
		}
	}
	p.free = nil
	return errors.Join(errs...)
}
