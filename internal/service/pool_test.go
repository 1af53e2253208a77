package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	var inFlight, peak int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), time.Second, func(context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency %d exceeds pool size 2", peak)
	}
}

func TestCall_Timeout(t *testing.T) {
	pool := NewPool(1)
	start := time.Now()
	_, err := Call(context.Background(), pool, 20*time.Millisecond, func(ctx context.Context) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Errorf("Call did not return at the deadline")
	}
}

func TestCall_ReturnsValue(t *testing.T) {
	v, err := Call(context.Background(), NewPool(1), 0, func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestCall_WaitingForSlotCountsAgainstTimeout(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})
	go pool.Do(context.Background(), 0, func(context.Context) error {
		<-release
		return nil
	})
	defer close(release)
	time.Sleep(10 * time.Millisecond)

	err := pool.Do(context.Background(), 20*time.Millisecond, func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded while waiting for a slot, got %v", err)
	}
}

func TestCall_AbandonedCallHoldsSlot(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})
	returned := make(chan struct{})

	err := pool.Do(context.Background(), 10*time.Millisecond, func(context.Context) error {
		defer close(returned)
		<-release
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if pool.Abandoned() != 1 {
		t.Errorf("Abandoned() = %d, want 1", pool.Abandoned())
	}

	err = pool.Do(context.Background(), 10*time.Millisecond, func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected slot to stay held, got %v", err)
	}

	close(release)
	<-returned
	if err := pool.Do(context.Background(), time.Second, func(context.Context) error { return nil }); err != nil {
		t.Errorf("slot not released after fn returned: %v", err)
	}
	if pool.Abandoned() != 1 {
		t.Errorf("Abandoned() = %d, want 1", pool.Abandoned())
	}
}
