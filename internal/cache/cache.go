// Package cache holds the most recent successfully extracted snapshot.
// A single writer (the scheduler) swaps an immutable pointer; readers never
// take a lock and never observe a half-written snapshot.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/courtside/linefeed/internal/feed"
)

// Cache is the single-snapshot store.
type Cache struct {
	cur       atomic.Pointer[feed.Snapshot]
	threshold time.Duration
	now       func() time.Time
}

// New creates a Cache. threshold separates fresh snapshots from stale ones.
func New(threshold time.Duration) *Cache {
	return &Cache{threshold: threshold, now: time.Now}
}

// Put publishes a snapshot, replacing the previous one. Scheduler-only.
func (c *Cache) Put(s *feed.Snapshot) {
	c.cur.Store(s)
}

// Get returns the current snapshot with its staleness classification.
// ok is false when no snapshot has been published yet.
func (c *Cache) Get() (s *feed.Snapshot, st feed.Staleness, ok bool) {
	s = c.cur.Load()
	if s == nil {
		return nil, feed.Stale, false
	}
	st = feed.Fresh
	if c.now().Sub(s.CapturedAt) >= c.threshold {
		st = feed.Stale
	}
	return s, st, true
}
