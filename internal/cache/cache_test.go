package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGet_FreshHitSkipsFetch(t *testing.T) {
	var fetches int32
	c := New(time.Minute, 2*time.Minute, func(ctx context.Context, key string) (int, error) {
		atomic.AddInt32(&fetches, 1)
		return 42, nil
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := c.Get(ctx, "k")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if v != 42 {
			t.Fatalf("get %d: expected 42, got %d", i, v)
		}
	}

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Fatalf("expected 1 fetch for 5 fresh gets, got %d", n)
	}
}

func TestGet_RefetchesAfterFreshWindow(t *testing.T) {
	var fetches int32
	c := New(time.Minute, 2*time.Minute, func(ctx context.Context, key string) (int, error) {
		return int(atomic.AddInt32(&fetches, 1)), nil
	})

	now := time.Now()
	c.SetClock(func() time.Time { return now })

	ctx := context.Background()
	if v, _ := c.Get(ctx, "k"); v != 1 {
		t.Fatalf("expected first fetch value 1, got %d", v)
	}

	// Still fresh at 59s.
	now = now.Add(59 * time.Second)
	if v, _ := c.Get(ctx, "k"); v != 1 {
		t.Fatalf("expected cached value 1 at 59s, got %d", v)
	}

	// Stale at 61s: refetched.
	now = now.Add(2 * time.Second)
	if v, _ := c.Get(ctx, "k"); v != 2 {
		t.Fatalf("expected refetched value 2 at 61s, got %d", v)
	}
}

func TestGet_RetriesOnceBeforeFailing(t *testing.T) {
	var fetches int32
	c := New(time.Minute, time.Minute, func(ctx context.Context, key string) (int, error) {
		if atomic.AddInt32(&fetches, 1) == 1 {
			return 0, errors.New("transient")
		}
		return 7, nil
	})

	v, err := c.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
	if n := atomic.LoadInt32(&fetches); n != 2 {
		t.Fatalf("expected 2 fetch attempts, got %d", n)
	}
}

func TestGet_ServesStaleOnFetchFailure(t *testing.T) {
	var fail atomic.Bool
	c := New(time.Minute, 10*time.Minute, func(ctx context.Context, key string) (int, error) {
		if fail.Load() {
			return 0, errors.New("source down")
		}
		return 9, nil
	})

	now := time.Now()
	c.SetClock(func() time.Time { return now })

	ctx := context.Background()
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Fatalf("seed get: %v", err)
	}

	// Past freshness but within retention: the stale value stands in for
	// the failing source.
	now = now.Add(5 * time.Minute)
	fail.Store(true)
	v, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("expected stale value instead of error, got %v", err)
	}
	if v != 9 {
		t.Fatalf("expected stale 9, got %d", v)
	}

	// Past retention the error surfaces.
	now = now.Add(10 * time.Minute)
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Fatal("expected error once retention expired")
	}
}

func TestGet_ConcurrentGetsShareOneFetch(t *testing.T) {
	var fetches int32
	release := make(chan struct{})
	c := New(time.Minute, time.Minute, func(ctx context.Context, key string) (int, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return 3, nil
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := c.Get(ctx, "k"); err != nil || v != 3 {
				t.Errorf("get: v=%d err=%v", v, err)
			}
		}()
	}

	// Give the goroutines time to pile up on the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Fatalf("expected 1 shared fetch, got %d", n)
	}
}

func TestGet_JoiningCallerHonorsItsContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := New(time.Minute, time.Minute, func(ctx context.Context, key string) (int, error) {
		close(started)
		<-release
		return 3, nil
	})

	go c.Get(context.Background(), "k") //nolint:errcheck
	<-started

	// The second caller joins the in-flight fetch with an already
	// cancelled context and must not block until the fetch finishes.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(release)
	if v, err := c.Get(context.Background(), "k"); err != nil || v != 3 {
		t.Fatalf("after release: v=%d err=%v", v, err)
	}
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	var fetches int32
	c := New(time.Minute, time.Minute, func(ctx context.Context, key string) (int, error) {
		return int(atomic.AddInt32(&fetches, 1)), nil
	})

	ctx := context.Background()
	c.Get(ctx, "k")
	c.Invalidate("k")
	if v, _ := c.Get(ctx, "k"); v != 2 {
		t.Fatalf("expected refetch after invalidate, got %d", v)
	}

	c.Clear()
	if v, _ := c.Get(ctx, "k"); v != 3 {
		t.Fatalf("expected refetch after clear, got %d", v)
	}
}

func TestGet_KeysAreIndependent(t *testing.T) {
	c := New(time.Minute, time.Minute, func(ctx context.Context, key string) (string, error) {
		return "v:" + key, nil
	})

	ctx := context.Background()
	a, _ := c.Get(ctx, "a")
	b, _ := c.Get(ctx, "b")
	if a != "v:a" || b != "v:b" {
		t.Fatalf("expected per-key values, got %q and %q", a, b)
	}

	c.Invalidate("a")
	if b2, _ := c.Get(ctx, "b"); b2 != "v:b" {
		t.Fatalf("invalidating a must not touch b, got %q", b2)
	}
}
