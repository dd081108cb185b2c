// Package worker runs slow module work (network probes, webhook delivery,
// history writes) off the scheduler goroutine.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/loykin/extbox/internal/metrics"
)

var ErrClosed = errors.New("worker pool closed")

// Pool bounds the number of concurrently running jobs. Submission never
// blocks: when every slot is busy the job is rejected.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	// mu makes the closed check and wg.Add atomic with respect to Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(size int, log *slog.Logger) *Pool {
	if size <= 0 {
		size = 4
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
		log:    log.With("component", "worker"),
	}
}

// Future is the pending result of a submitted job.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Poll returns the result without blocking; ok is false while running.
func (f *Future[T]) Poll() (val T, err error, ok bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on p. It returns false when the pool is saturated or
// closed. fn receives a context cancelled when the pool shuts down.
func Submit[T any](p *Pool, fn func(ctx context.Context) (T, error)) (*Future[T], bool) {
	p.mu.Lock()
	if p.closed || !p.sem.TryAcquire(1) {
		p.mu.Unlock()
		metrics.IncWorkerRejected()
		return nil, false
	}
	p.wg.Add(1)
	p.mu.Unlock()
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("job panicked", "panic", r)
				f.err = errors.New("job panicked")
			}
		}()
		f.val, f.err = fn(p.ctx)
	}()
	return f, true
}

// Go runs fn without a result.
func (p *Pool) Go(fn func(ctx context.Context)) bool {
	_, ok := Submit(p, func(ctx context.Context) (struct{}, error) {
		fn(ctx)
		return struct{}{}, nil
	})
	return ok
}

// Close stops accepting jobs, cancels running ones and waits for them
// until ctx expires.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
