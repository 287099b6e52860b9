package analysis

import (
	"k8s.io/utils/lru"

	"github.com/northcutted/drvscan/pkg/report"
)

// DefaultCacheSize is the number of distinct file contents remembered per run.
const DefaultCacheSize = 256

// Cache is an LRU of classified results keyed by content hash, so duplicate
// drivers in one scan are only parsed once.
type Cache struct {
	lru *lru.Cache
}

// NewCache returns a cache holding up to size entries, or nil if size is not
// positive. A nil *Cache never hits.
func NewCache(size int) *Cache {
	if size <= 0 {
		return nil
	}
	return &Cache{lru: lru.New(size)}
}

// Get implements report.ResultCache.
func (c *Cache) Get(hash string) (report.Classified, bool) {
	if c == nil {
		return report.Classified{}, false
	}
	v, ok := c.lru.Get(hash)
	if !ok {
		return report.Classified{}, false
	}
	return v.(report.Classified), true
}

// Add implements report.ResultCache.
func (c *Cache) Add(hash string, r report.Classified) {
	if c == nil {
		return
	}
	c.lru.Add(hash, r)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
