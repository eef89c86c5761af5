package concur

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func newTestCache(t *testing.T, ttl time.Duration, clock clockz.Clock) *ConcurrentCache[string, string] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backing.log")
	c, err := NewConcurrentCache[string, string](ConcurrentCacheConfig{
		BackingStorePath: path,
		DefaultTTL:       ttl,
		Clock:            clock,
	})
	if err != nil {
		t.Fatalf("NewConcurrentCache failed: %v", err)
	}
	return c
}

func TestCacheBasicOperations(t *testing.T) {
	c := newTestCache(t, 5*time.Second, clockz.RealClock)

	if err := c.Put(context.Background(), "key1", "value1"); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	v, err := c.Get(context.Background(), "key1", func() (string, error) {
		return "recomputed", nil
	})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if v != "value1" {
		t.Fatalf("expected cached value1, got %q", v)
	}
}

func TestCacheExpiration(t *testing.T) {
	fake := clockz.NewFakeClock()
	c := newTestCache(t, 100*time.Millisecond, fake)

	if err := c.Put(context.Background(), "key1", "value1"); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	v, err := c.Get(context.Background(), "key1", func() (string, error) {
		return "recomputed", nil
	})
	if err != nil || v != "value1" {
		t.Fatalf("expected cached value1, got %q err=%v", v, err)
	}

	fake.Advance(150 * time.Millisecond)
	fake.BlockUntilReady()

	v, err = c.Get(context.Background(), "key1", func() (string, error) {
		return "recomputed", nil
	})
	if err != nil {
		t.Fatalf("get after expiration failed: %v", err)
	}
	if v != "recomputed" {
		t.Fatalf("expected recomputed value after expiration, got %q", v)
	}
}

func TestCacheRecomputeErrorNotCached(t *testing.T) {
	c := newTestCache(t, 5*time.Second, clockz.RealClock)

	wantErr := errors.New("boom")
	_, err := c.Get(context.Background(), "missing", func() (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected propagated recompute error, got %v", err)
	}

	if c.Size() != 0 {
		t.Fatalf("expected nothing cached after a failed recompute, got size %d", c.Size())
	}
}

// TestCache_Coalescing asserts the sharper per-key invariant: concurrent
// callers racing on the *same* key recompute exactly once, not merely "at
// most" some bound. This is the end-to-end scenario from spec.md §8
// scenario 4: five goroutines call Get("k", f) where f sleeps 200ms; all
// five must observe the same value and the recompute counter must equal
// exactly 1.
func TestCache_Coalescing(t *testing.T) {
	c := newTestCache(t, 5*time.Second, clockz.RealClock)

	var computations int32
	var wg sync.WaitGroup
	results := make([]string, 5)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "k", func() (string, error) {
				atomic.AddInt32(&computations, 1)
				time.Sleep(200 * time.Millisecond)
				return "computed", nil
			})
			if err != nil {
				t.Errorf("get failed: %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&computations); got != 1 {
		t.Fatalf("expected exactly 1 recomputation for a single key, got %d", got)
	}
	for i, v := range results {
		if v != "computed" {
			t.Fatalf("caller %d got %q, expected the coalesced value %q", i, v, "computed")
		}
	}
}

// TestCache_CoalescingPerKey extends the single-key invariant above across
// multiple keys at once: each distinct key coalesces independently to
// exactly one recompute, and recomputing one key never serializes against
// another.
func TestCache_CoalescingPerKey(t *testing.T) {
	c := newTestCache(t, time.Second, clockz.RealClock)

	const numKeys = 3
	const callersPerKey = 5

	var wg sync.WaitGroup
	perKeyComputations := make([]int32, numKeys)
	results := make([][]string, numKeys)
	for k := range results {
		results[k] = make([]string, callersPerKey)
	}

	for k := 0; k < numKeys; k++ {
		key := fmt.Sprintf("key%d", k)
		for i := 0; i < callersPerKey; i++ {
			wg.Add(1)
			go func(k, i int, key string) {
				defer wg.Done()
				v, err := c.Get(context.Background(), key, func() (string, error) {
					atomic.AddInt32(&perKeyComputations[k], 1)
					time.Sleep(20 * time.Millisecond)
					return fmt.Sprintf("computed_%d", k), nil
				})
				if err != nil {
					t.Errorf("get failed for %s: %v", key, err)
					return
				}
				results[k][i] = v
			}(k, i, key)
		}
	}
	wg.Wait()

	for k := 0; k < numKeys; k++ {
		if got := atomic.LoadInt32(&perKeyComputations[k]); got != 1 {
			t.Fatalf("key%d: expected exactly 1 recomputation, got %d", k, got)
		}
		want := fmt.Sprintf("computed_%d", k)
		for i, v := range results[k] {
			if v != want {
				t.Fatalf("key%d caller %d got %q, expected %q", k, i, v, want)
			}
		}
	}
}

func TestCacheSizeAndCleanupExpired(t *testing.T) {
	fake := clockz.NewFakeClock()
	c := newTestCache(t, 50*time.Millisecond, fake)

	for i := 0; i < 3; i++ {
		if err := c.Put(context.Background(), fmt.Sprintf("k%d", i), "v"); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}
	if c.Size() != 3 {
		t.Fatalf("expected size 3, got %d", c.Size())
	}

	fake.Advance(100 * time.Millisecond)
	fake.BlockUntilReady()

	removed := c.CleanupExpired()
	if removed != 3 {
		t.Fatalf("expected 3 entries removed, got %d", removed)
	}
	if c.Size() != 0 {
		t.Fatalf("expected size 0 after cleanup, got %d", c.Size())
	}
}
