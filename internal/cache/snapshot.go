// Package cache holds the most recent pipeline snapshot.
package cache

import (
	"sync/atomic"
	"time"

	"cryptoScreener/internal/domain"
)

// DefaultTTL is how long a snapshot is served without recomputation.
const DefaultTTL = 2 * time.Minute

// SnapshotCache stores one snapshot with a freshness window. Writes replace the
// entry atomically; reads never block.
type SnapshotCache struct {
	ttl   time.Duration
	now   func() time.Time
	entry atomic.Pointer[domain.Snapshot]
}

// New creates an empty cache. A non-positive ttl selects DefaultTTL.
func New(ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SnapshotCache{ttl: ttl, now: time.Now}
}

// TTL returns the freshness window.
func (c *SnapshotCache) TTL() time.Duration {
	return c.ttl
}

// Store replaces the cached snapshot.
func (c *SnapshotCache) Store(s *domain.Snapshot) {
	c.entry.Store(s)
}

// Load returns the cached snapshot, if any, and whether it is still fresh.
// A partial snapshot is never fresh: it stays loadable as a fallback but the
// next request recomputes. The returned snapshot must not be modified.
func (c *SnapshotCache) Load() (snap *domain.Snapshot, fresh bool) {
	s := c.entry.Load()
	if s == nil {
		return nil, false
	}
	return s, !s.Partial && s.Age(c.now()) < c.ttl
}

// Fresh returns the cached snapshot only while it is within its TTL.
func (c *SnapshotCache) Fresh() (*domain.Snapshot, bool) {
	s, fresh := c.Load()
	if !fresh {
		return nil, false
	}
	return s, true
}

// Age returns the age of the cached snapshot, or false when empty.
func (c *SnapshotCache) Age() (time.Duration, bool) {
	s := c.entry.Load()
	if s == nil {
		return 0, false
	}
	return s.Age(c.now()), true
}
