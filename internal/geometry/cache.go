package geometry

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/geosync/pkg/types"
)

// DefaultCacheSize is used when a non-positive size is requested
const DefaultCacheSize = 4096

// Result is one memoized normalization outcome
type Result struct {
	Geometry types.Geometry
	Err      error
}

// Cache memoizes normalization outcomes by raw geometry hash
type Cache struct {
	cache *lru.Cache[string, Result]
}

// NewCache creates a normalization cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, Result](maxLen)
	if err != nil {
		cache, _ = lru.New[string, Result](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached outcome for key
func (c *Cache) Get(key string) (Result, bool) {
	r, ok := c.cache.Get(key)
	if !ok {
		return Result{}, false
	}
	if r.Err != nil {
		return Result{Err: r.Err}, true
	}
	return Result{Geometry: r.Geometry.Force2D()}, true
}

// Set stores an outcome. Invalid results are cached too.
func (c *Cache) Set(key string, r Result) {
	c.cache.Add(key, r)
}

// Size returns the number of cached outcomes
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// Key computes the cache key of raw geometry bytes
func Key(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
