package pacer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalCeiling_BoundsConcurrency(t *testing.T) {
	c, err := NewLocalCeiling(2)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	var inFlight, maxSeen atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := inFlight.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			c.Release(context.Background())
		}()
	}
	wg.Wait()

	if maxSeen.Load() > 2 {
		t.Fatalf("ceiling of 2 exceeded: saw %d in flight", maxSeen.Load())
	}
}

func TestLocalCeiling_AcquireHonorsContext(t *testing.T) {
	c, err := NewLocalCeiling(1)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := c.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Acquire(ctx); err == nil {
		t.Fatalf("expected context deadline on saturated ceiling")
	}
}

func TestLocalCeiling_RejectsBadLimit(t *testing.T) {
	if _, err := NewLocalCeiling(0); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
