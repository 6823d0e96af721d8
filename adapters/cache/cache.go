// Package cache provides the in-memory operation cache for decoded and
// transformed rasters.
package cache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Skryldev/rasterpipe/core"
)

// LRU is a fixed-size least-recently-used core.Cache. Entries are frozen on
// insert so they can be shared between concurrent runs.
type LRU struct {
	entries *lru.Cache[string, core.CacheEntry]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewLRU returns an LRU holding at most size entries.
func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, core.CacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRU{entries: c}, nil
}

func (c *LRU) Get(key string) (core.CacheEntry, bool) {
	e, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return e, ok
}

func (c *LRU) Add(key string, e core.CacheEntry) {
	if e.Image != nil {
		e.Image.Freeze()
	}
	c.entries.Add(key, e)
}

func (c *LRU) Purge() { c.entries.Purge() }

func (c *LRU) Len() int { return c.entries.Len() }

// Resize changes the capacity, evicting the oldest entries if it shrinks.
func (c *LRU) Resize(size int) {
	if size > 0 {
		c.entries.Resize(size)
	}
}

// Stats reports cumulative hits and misses.
func (c *LRU) Stats() (hits, misses int64) { return c.hits.Load(), c.misses.Load() }
