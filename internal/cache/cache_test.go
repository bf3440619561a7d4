package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c := New(time.Hour, time.Hour)
	t.Cleanup(c.Close)
	return c
}

func TestPutGet(t *testing.T) {
	c := newTestCache(t)

	c.Put("how many rows", "The dataset contains 42 rows.")

	got, ok := c.Get("how many rows")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != "The dataset contains 42 rows." {
		t.Errorf("Get returned %q", got)
	}
}

func TestNormalizedKeying(t *testing.T) {
	c := newTestCache(t)

	c.Put("how many rows", "42")

	// Case and surrounding whitespace do not affect the key.
	for _, q := range []string{"How Many Rows", "  HOW MANY ROWS  ", "how many rows"} {
		if got, ok := c.Get(q); !ok || got != "42" {
			t.Errorf("Get(%q) = (%q, %v), want (42, true)", q, got, ok)
		}
	}
}

func TestEmptyResponseNotCached(t *testing.T) {
	c := newTestCache(t)

	c.Put("some query", "")
	c.Put("other query", "   \n\t ")

	if st := c.Stats(); st.CachedItems != 0 {
		t.Errorf("cached_items = %d, want 0", st.CachedItems)
	}
}

func TestExpiry(t *testing.T) {
	c := newTestCache(t)

	c.PutTTL("how many rows", "42", 0)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("how many rows"); ok {
		t.Error("expired entry returned as hit")
	}
	// The expired entry is purged on access.
	if st := c.Stats(); st.CachedItems != 0 {
		t.Errorf("cached_items = %d after expired read, want 0", st.CachedItems)
	}
}

func TestSweep(t *testing.T) {
	c := newTestCache(t)

	c.PutTTL("a query about rows", "1", 0)
	c.PutTTL("a query about columns", "2", 0)
	c.Put("a fresh query", "3")
	time.Sleep(5 * time.Millisecond)

	removed := c.Sweep()
	if removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if st := c.Stats(); st.CachedItems != 1 {
		t.Errorf("cached_items = %d after sweep, want 1", st.CachedItems)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t)

	c.Put("q1 about data", "r1")
	c.Put("q2 about data", "r2")

	if n := c.Clear(); n != 2 {
		t.Errorf("Clear = %d, want 2", n)
	}
	if _, ok := c.Get("q1 about data"); ok {
		t.Error("entry survived Clear")
	}
}

func TestOverwrite(t *testing.T) {
	c := newTestCache(t)

	c.Put("how many rows", "old")
	c.Put("How Many Rows", "new")

	if got, _ := c.Get("how many rows"); got != "new" {
		t.Errorf("Get = %q, want new", got)
	}
	if st := c.Stats(); st.CachedItems != 1 {
		t.Errorf("cached_items = %d, want 1", st.CachedItems)
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t)

	c.Put("query one here", "r1")

	c.Get("query one here") // hit
	c.Get("query two here") // miss
	c.Get("query one here") // hit

	st := c.Stats()
	if st.Hits != 2 {
		t.Errorf("hits = %d, want 2", st.Hits)
	}
	if st.Misses != 1 {
		t.Errorf("misses = %d, want 1", st.Misses)
	}
	if st.TotalQueries != 3 {
		t.Errorf("total_queries = %d, want 3", st.TotalQueries)
	}
	want := float64(2) / 3 * 100
	if st.HitRatePercent < want-0.01 || st.HitRatePercent > want+0.01 {
		t.Errorf("hit_rate = %f, want %f", st.HitRatePercent, want)
	}
	if st.EstimatedBytes <= 0 {
		t.Errorf("estimated_bytes = %d, want > 0", st.EstimatedBytes)
	}
}

func TestStatsEmptyCache(t *testing.T) {
	c := newTestCache(t)

	st := c.Stats()
	if st.HitRatePercent != 0 {
		t.Errorf("hit_rate on empty cache = %f, want 0", st.HitRatePercent)
	}
}

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("How Many Rows")
	k2 := Key("  how many rows ")
	if k1 != k2 {
		t.Errorf("normalized keys differ: %s vs %s", k1, k2)
	}
	if len(k1) != 32 { // 128-bit digest, hex encoded
		t.Errorf("key length = %d, want 32", len(k1))
	}
	if Key("how many rows") == Key("how many columns") {
		t.Error("distinct queries share a key")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := newTestCache(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q := fmt.Sprintf("query %d", j%10)
				c.Put(q, "response")
				c.Get(q)
				if j%25 == 0 {
					c.Sweep()
					c.Stats()
				}
			}
		}(i)
	}
	wg.Wait()

	if st := c.Stats(); st.CachedItems != 10 {
		t.Errorf("cached_items = %d, want 10", st.CachedItems)
	}
}

func TestCloseIdempotent(t *testing.T) {
	c := New(time.Minute, time.Minute)
	c.Close()
	c.Close()
}

// reentrantHandler re-enters the cache from inside the log call. Any
// log write made while the cache lock is held deadlocks here.
type reentrantHandler struct {
	c *Cache
}

func (h reentrantHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h reentrantHandler) Handle(_ context.Context, _ slog.Record) error {
	h.c.Stats()
	return nil
}

func (h reentrantHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h reentrantHandler) WithGroup(_ string) slog.Handler      { return h }

func TestLoggingDoesNotHoldLock(t *testing.T) {
	c := newTestCache(t)

	prev := slog.Default()
	slog.SetDefault(slog.New(reentrantHandler{c: c}))
	t.Cleanup(func() { slog.SetDefault(prev) })

	c.Put("how many rows", "42")
	if got, ok := c.Get("how many rows"); !ok || got != "42" {
		t.Errorf("Get = (%q, %v), want (42, true)", got, ok)
	}
	c.Sweep()
	c.Clear()
}
