package sparql

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Cache defaults.
const (
	DefaultCacheTTL        = 600 * time.Second
	DefaultCacheMaxEntries = 1000

	// cacheSweepInterval is the minimum gap between opportunistic
	// sweeps of expired entries.
	cacheSweepInterval = time.Minute
)

// queryCache is a TTL-bounded in-memory cache of parsed result sets,
// keyed by the SHA-256 of the full query text. Expired entries are
// dropped lazily on lookup and swept opportunistically on writes.
type queryCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	maxEntries int

	hits      uint64
	misses    uint64
	evictions uint64
	lastSweep time.Time
}

type cacheEntry struct {
	result    *ResultSet
	storedAt  time.Time
	expiresAt time.Time
}

func newQueryCache(ttl time.Duration, maxEntries int) *queryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &queryCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		lastSweep:  time.Now(),
	}
}

// cacheKey returns the cache key for a fully substituted query.
func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// get returns the cached result set for key, expiring it lazily.
func (c *queryCache) get(key string) (*ResultSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.evictions++
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.result, true
}

// put stores a result set, evicting the oldest entry when full.
func (c *queryCache) put(key string, rs *ResultSet) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &cacheEntry{
		result:    rs,
		storedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
	c.maybeSweepLocked(now)
}

func (c *queryCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *queryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// evictOldestLocked removes the oldest stored entry. Caller holds mu.
func (c *queryCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.storedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// maybeSweepLocked drops expired entries at most once per
// cacheSweepInterval. Caller holds mu.
func (c *queryCache) maybeSweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < cacheSweepInterval {
		return
	}
	c.lastSweep = now
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			c.evictions++
		}
	}
}

// CacheStats describes the state of the client's query cache.
type CacheStats struct {
	Entries    int           `json:"entries"`
	Hits       uint64        `json:"hits"`
	Misses     uint64        `json:"misses"`
	Evictions  uint64        `json:"evictions"`
	TTL        time.Duration `json:"ttl"`
	MaxEntries int           `json:"max_entries"`
}

func (c *queryCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Entries:    len(c.entries),
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		TTL:        c.ttl,
		MaxEntries: c.maxEntries,
	}
}
