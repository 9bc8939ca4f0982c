package syncutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestContextShardedMutex_LockUnlock(t *testing.T) {
	m := NewContextShardedMutex()

	unlock, err := m.LockContext(context.Background(), "sess_abc")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	unlock()
}

func TestContextShardedMutex_SerializesSameKey(t *testing.T) {
	m := NewContextShardedMutex()
	ctx := context.Background()

	var counter int64
	var wg sync.WaitGroup
	const batches = 100

	wg.Add(batches)
	for i := 0; i < batches; i++ {
		go func() {
			defer wg.Done()
			unlock, err := m.LockContext(ctx, "sess_hot")
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			defer unlock()
			// Read-modify-write that a broken lock would corrupt.
			v := atomic.LoadInt64(&counter)
			atomic.StoreInt64(&counter, v+1)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&counter); got != batches {
		t.Fatalf("expected %d increments, got %d", batches, got)
	}
}

func TestContextShardedMutex_CancelledWaiter(t *testing.T) {
	m := NewContextShardedMutex()

	unlock, err := m.LockContext(context.Background(), "sess_held")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unlock()

	waitCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := m.LockContext(waitCtx, "sess_held"); err != context.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestContextShardedMutex_IndependentKeys(t *testing.T) {
	m := NewContextShardedMutex()
	ctx := context.Background()

	unlock1, err := m.LockContext(ctx, "sess_one")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlock2, err := m.LockContext(timeoutCtx, "sess_two")
	if err != nil {
		// The two keys collided on a shard, which is possible but rare.
		t.Skip("keys hashed to the same shard")
	}

	unlock2()
	unlock1()
}

func TestContextShardedMutex_HandoffAfterUnlock(t *testing.T) {
	m := NewContextShardedMutex()
	ctx := context.Background()

	unlock, err := m.LockContext(ctx, "sess_relay")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		u, err := m.LockContext(ctx, "sess_relay")
		if err != nil {
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second waiter acquired lock before release")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second waiter did not acquire lock after release")
	}
}
