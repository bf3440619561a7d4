// Package cache implements the in-memory response cache with per-entry TTL.
//
// The cache is an explicit object with its own lifecycle: it owns the
// background sweeper goroutine and is torn down with Close at shutdown.
// All read-modify-write sequences on the store share one exclusive lock;
// no I/O happens while it is held.
package cache

import (
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DefaultTTL is applied when Put is called without an explicit TTL.
const DefaultTTL = 60 * time.Minute

// DefaultSweepInterval is how often the background sweeper purges
// expired entries.
const DefaultSweepInterval = 5 * time.Minute

// entry is one cached response. expiresAt = createdAt + ttl at creation;
// an entry past expiresAt is logically absent and purged on next access
// or sweep.
type entry struct {
	query        string // truncated original query, diagnostics only
	response     string
	createdAt    time.Time
	lastAccessed time.Time
	expiresAt    time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits           uint64  `json:"hits"`
	Misses         uint64  `json:"misses"`
	TotalQueries   uint64  `json:"total_queries"`
	HitRatePercent float64 `json:"hit_rate_percent"`
	CachedItems    int     `json:"cached_items"`
	EstimatedBytes int64   `json:"estimated_bytes"`
}

// Cache is a concurrent response cache keyed by a digest of the
// normalized query.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	hits   uint64
	misses uint64
	total  uint64

	defaultTTL    time.Duration
	sweepInterval time.Duration

	done    chan struct{}
	stopped sync.Once
}

// New creates a Cache and starts its background sweeper. Non-positive
// durations fall back to the defaults.
func New(defaultTTL, sweepInterval time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	c := &Cache{
		entries:       make(map[string]*entry),
		defaultTTL:    defaultTTL,
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

// Normalize lower-cases and trims a query for key derivation.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Key derives the 128-bit cache key digest for a query. Collisions are a
// theoretical risk, not defended against.
func Key(query string) string {
	sum, _ := blake2b.New(16, nil)
	sum.Write([]byte(Normalize(query)))
	return hex.EncodeToString(sum.Sum(nil))
}

// Get returns the cached response for a query, if present and unexpired.
// An expired entry is deleted and reported as a miss. Logging happens
// after the lock is released.
func (c *Cache) Get(query string) (string, bool) {
	key := Key(query)
	now := time.Now()

	c.mu.Lock()

	c.total++

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return "", false
	}

	if now.After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		c.mu.Unlock()
		return "", false
	}

	e.lastAccessed = now
	c.hits++
	response := e.response
	c.mu.Unlock()

	slog.Debug("Cache hit", "query", truncate(query, 50))
	return response, true
}

// Put caches a response using the default TTL.
func (c *Cache) Put(query, response string) {
	c.PutTTL(query, response, c.defaultTTL)
}

// PutTTL caches a response with an explicit TTL, overwriting any existing
// entry for the same normalized query. Empty responses are not cached.
func (c *Cache) PutTTL(query, response string, ttl time.Duration) {
	if strings.TrimSpace(response) == "" {
		return
	}

	key := Key(query)
	now := time.Now()

	c.mu.Lock()
	c.entries[key] = &entry{
		query:        truncate(query, 100),
		response:     response,
		createdAt:    now,
		lastAccessed: now,
		expiresAt:    now.Add(ttl),
	}
	c.mu.Unlock()

	slog.Debug("Cached response", "query", truncate(query, 50), "ttl", ttl)
}

// Clear empties the store and returns the number of entries removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	count := len(c.entries)
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	slog.Info("Cleared cached responses", "count", count)
	return count
}

// Sweep removes every expired entry and returns the count removed. The
// sweeper calls this on a fixed interval; tests may call it directly.
func (c *Cache) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	var removed int
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		slog.Debug("Swept expired cache entries", "count", removed)
	}
	return removed
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := float64(c.hits) / float64(maxU64(1, c.total)) * 100

	var size int64
	for _, e := range c.entries {
		size += int64(len(e.query) + len(e.response) + 3*8)
	}

	return Stats{
		Hits:           c.hits,
		Misses:         c.misses,
		TotalQueries:   c.total,
		HitRatePercent: hitRate,
		CachedItems:    len(c.entries),
		EstimatedBytes: size,
	}
}

// Close stops the background sweeper. Idempotent.
func (c *Cache) Close() {
	c.stopped.Do(func() {
		close(c.done)
	})
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
