package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/timmy/emosense/internal/logger"
	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of collaborator calls in flight across all requests.
type Pool struct {
	sem       *semaphore.Weighted
	size      int
	abandoned atomic.Int64
}

// NewPool creates a pool with size slots. size < 1 is treated as 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Abandoned returns how many calls hit their deadline while fn was still running.
func (p *Pool) Abandoned() int64 {
	return p.abandoned.Load()
}

type callResult[T any] struct {
	val T
	err error
}

// Call runs fn in a pool slot with its own timeout. Waiting for a slot counts
// against the timeout. If the deadline passes while fn is still running, Call
// returns the context error at once; the slot is released when fn returns.
func Call[T any](ctx context.Context, p *Pool, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan callResult[T], 1)
	go func() {
		defer p.sem.Release(1)
		v, err := fn(ctx)
		done <- callResult[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		select {
		case r := <-done:
			return r.val, r.err
		default:
		}
		// fn ignored cancellation and keeps its slot until it returns.
		total := p.abandoned.Add(1)
		logger.With(logger.Fields{
			logger.FieldDurationMs: timeout.Milliseconds(),
			"abandoned_total":      total,
		}).WithError(ctx.Err()).Warn(ctx, "Collaborator call abandoned; slot held until it returns")
		return zero, ctx.Err()
	}
}

// Do is Call for functions without a result value.
func (p *Pool) Do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, p, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
