package services

import (
	"time"

	"teambudget/internal/cache"
	"teambudget/internal/core"
)

// SeenTracker remembers which notification ids were already surfaced during
// this process's lifetime, so toasts and publications fire once per id.
//
// The backing cache grows to hold every id of the set being filtered, and
// ids still in that set are kept most recently used, so a currently derived
// notification is never evicted by size. An id that drops out of the derived
// set may be evicted later and surface again if it returns. A non-zero ttl
// deliberately lets ids surface again once expired.
type SeenTracker struct {
	ids cache.Cache[struct{}]
}

type grower interface {
	Grow(n int)
}

// NewSeenTracker keeps at least size ids for ttl. A zero ttl keeps them until
// evicted by size.
func NewSeenTracker(size int, ttl time.Duration) *SeenTracker {
	return NewSeenTrackerWithCache(cache.NewLRUCache[struct{}](size, ttl))
}

func NewSeenTrackerWithCache(c cache.Cache[struct{}]) *SeenTracker {
	return &SeenTracker{ids: c}
}

// FilterUnseen returns the notifications whose id has not been surfaced yet
// and marks them as seen.
func (t *SeenTracker) FilterUnseen(ns []core.Notification) []core.Notification {
	if g, ok := t.ids.(grower); ok {
		g.Grow(len(ns))
	}
	var fresh []core.Notification
	for _, n := range ns {
		if t.ids.SetIfAbsent(n.ID, struct{}{}) {
			fresh = append(fresh, n)
		}
	}
	return fresh
}

// Seen reports whether id was already surfaced.
func (t *SeenTracker) Seen(id string) bool {
	_, ok := t.ids.Get(id)
	return ok
}

// Cleaner exposes the backing cache for periodic expiry sweeps, if supported.
func (t *SeenTracker) Cleaner() (cache.Cleaner, bool) {
	c, ok := t.ids.(cache.Cleaner)
	return c, ok
}
