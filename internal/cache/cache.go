// Package cache implements the shared TTL-bound memoization layer used by
// tool invocations. Correctness requirements: an entry is never served past
// its TTL (expired entries are evicted on read, not returned), memory is
// capped by LRU eviction, and concurrent fetches for the same cold key
// collapse into a single upstream call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/normanking/wayfarer/internal/trip"
)

// DefaultSize caps the number of live entries.
const DefaultSize = 512

type entry struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
}

func (e entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) >= e.ttl
}

// Stats tracks cache effectiveness.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is the process-wide memoization layer. Safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, entry]
	group singleflight.Group
	stats Stats

	// now is swappable for expiry tests.
	now func() time.Time
}

// New creates a cache bounded to size entries (DefaultSize when <= 0).
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	c := &Cache{now: time.Now}
	// Error only occurs for non-positive sizes, which are normalized above.
	c.lru, _ = lru.New[string, entry](size)
	return c
}

// KeyFrom derives a deterministic cache key: the kind plus its normalized
// parameters in sorted order, hashed.
func KeyFrom(kind string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(kind)
	for _, k := range keys {
		sb.WriteString("|")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(strings.ToLower(strings.TrimSpace(params[k])))
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}

// Key derives the cache key for a tool invocation.
func Key(category trip.ToolCategory, params map[string]string) string {
	return KeyFrom(category.String(), params)
}

// RequestKey derives the cache key for a ToolRequest.
func RequestKey(req *trip.ToolRequest) string {
	return Key(req.Category, req.Params)
}

// Get returns the live value for key. An expired entry is evicted and
// reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if e.expired(c.now()) {
		c.lru.Remove(key)
		c.stats.Misses++
		c.stats.Evictions++
		return nil, false
	}

	c.stats.Hits++
	return e.value, true
}

// Put stores a value under key with the given TTL. A zero TTL means the
// entry only ages out by LRU pressure.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{value: value, createdAt: c.now(), ttl: ttl})
}

// GetOrFetch returns the cached value for key, or runs fetch to populate it.
// Concurrent callers for the same uncached key share one fetch. The second
// return value reports whether the result came from cache.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) (any, error)) (any, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// Re-check: another flight may have populated the key between the
		// miss above and this call winning the group slot.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, shared, nil
}

// Stats returns a copy of the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len returns the number of resident entries, counting expired ones not yet
// evicted lazily.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
