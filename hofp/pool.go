// Package hofp exposes a higher order function pool which abstracts away the logic/error handling required to
// perform tasks concurrently by wrapping them into a common 'func(context.Context) error' interface.
package hofp

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mopaq/tools-common/log"
)

// Function is a higher order function to be executed by the worker pool, where possible, the function should honor
// the cancellation of the given context and return as quickly/cleanly as possible.
type Function func(ctx context.Context) error

// Pool executes the provided functions concurrently using a configurable number of workers.
//
// NOTE: Fails fast, the first error begins teardown; functions already queued at that point are drained without
// being executed, and subsequent attempts to queue return the error which stopped the pool.
type Pool struct {
	opts Options

	hofs chan Function

	ctx    context.Context
	cancel context.CancelFunc

	// failure holds the first error returned by a function; it is recorded exactly once and owns teardown.
	failure atomic.Pointer[poolError]

	workers sync.WaitGroup
	drained sync.Once
}

// poolError boxes an error so it can live in an atomic pointer.
type poolError struct {
	err error
}

// NewPool returns a new higher order function worker pool with the provided number of workers.
func NewPool(opts Options) *Pool {
	// Fill out any missing fields with the sane defaults
	opts.defaults()

	ctx, cancel := context.WithCancel(opts.Context)

	pool := &Pool{
		opts:   opts,
		hofs:   make(chan Function, opts.Size*opts.BufferMultiplier),
		ctx:    ctx,
		cancel: cancel,
	}

	pool.workers.Add(opts.Size)

	for w := 0; w < opts.Size; w++ {
		go pool.work()
	}

	return pool
}

// work executes queued functions until the queue is closed. After teardown has begun the remaining functions are
// consumed without being executed so producers blocked on a full queue are released.
func (p *Pool) work() {
	defer p.workers.Done()

	for fn := range p.hofs {
		if p.ctx.Err() != nil {
			continue
		}

		if err := fn(p.ctx); err != nil {
			p.abort(err)
		}
	}
}

// abort records the given error if it is the first, beginning teardown; later errors only get logged so they are
// not missed whilst debugging.
func (p *Pool) abort(err error) {
	if p.failure.CompareAndSwap(nil, &poolError{err: err}) {
		p.cancel()

		return
	}

	log.Errorf("%s Dropped error during teardown: %v", p.opts.LogPrefix, err)
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return p.opts.Size
}

// Err returns the error which stopped the pool, if any.
func (p *Pool) Err() error {
	if failure := p.failure.Load(); failure != nil {
		return failure.err
	}

	return nil
}

// Queue a function for execution by the worker pool. Returns the pool's error if it is tearing down, or the
// context error if the surrounding context was cancelled; either return value should be used to stop queuing work.
func (p *Pool) Queue(fn Function) error {
	if err := p.Err(); err != nil {
		return err
	}

	select {
	case p.hofs <- fn:
		return nil
	case <-p.ctx.Done():
	}

	if err := p.Err(); err != nil {
		return err
	}

	return p.ctx.Err()
}

// Stop the worker pool gracefully, executing any remaining functions unless the pool has failed or its context was
// cancelled, in which case they are drained without being executed. Subsequent calls only return the error which
// caused the pool to tear down (if there was one).
func (p *Pool) Stop() error {
	p.drained.Do(func() {
		close(p.hofs)
		p.workers.Wait()
		p.cancel()
	})

	return p.Err()
}
