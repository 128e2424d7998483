package bouncer

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultReplayWindow is how long a (sat_id, nonce) pair stays burned.
	DefaultReplayWindow = 10 * time.Minute

	// replayCacheMaxSize bounds memory under a flood of authentic traffic.
	replayCacheMaxSize = 100000

	// purgeEvery runs a full expiry sweep every N insertions.
	purgeEvery = 256
)

// ReplayCache remembers which (sat_id, nonce) pairs were admitted recently.
// It has no background goroutine; expired entries are purged lazily. It is
// safe for concurrent use.
type ReplayCache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[uint64]time.Time
	ops     uint64
}

// NewReplayCache returns an empty cache. A non-positive window uses
// DefaultReplayWindow.
func NewReplayCache(window time.Duration) *ReplayCache {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &ReplayCache{
		window:  window,
		entries: make(map[uint64]time.Time),
	}
}

// CheckAndAdd reports whether (satID, nonce) was seen within the window
// before now. A new pair is recorded.
func (rc *ReplayCache) CheckAndAdd(satID, nonce uint32, now time.Time) bool {
	key := uint64(satID)<<32 | uint64(nonce)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.ops++
	if rc.ops%purgeEvery == 0 {
		rc.evictExpired(now)
	}

	if firstSeen, ok := rc.entries[key]; ok && now.Sub(firstSeen) < rc.window {
		return true
	}
	if len(rc.entries) >= replayCacheMaxSize {
		rc.evictExpired(now)
		if len(rc.entries) >= replayCacheMaxSize {
			rc.evictOldest()
		}
	}
	rc.entries[key] = now
	return false
}

// Seen reports whether (satID, nonce) was recorded within the window
// before now, without recording it.
func (rc *ReplayCache) Seen(satID, nonce uint32, now time.Time) bool {
	key := uint64(satID)<<32 | uint64(nonce)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	firstSeen, ok := rc.entries[key]
	return ok && now.Sub(firstSeen) < rc.window
}

// Size returns the number of remembered pairs.
func (rc *ReplayCache) Size() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.entries)
}

func (rc *ReplayCache) evictExpired(now time.Time) {
	cutoff := now.Add(-rc.window)
	for key, firstSeen := range rc.entries {
		if firstSeen.Before(cutoff) {
			delete(rc.entries, key)
		}
	}
}

// evictOldest drops a tenth of the cache, oldest first.
func (rc *ReplayCache) evictOldest() {
	type aged struct {
		key  uint64
		seen time.Time
	}
	all := make([]aged, 0, len(rc.entries))
	for key, seen := range rc.entries {
		all = append(all, aged{key, seen})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seen.Before(all[j].seen) })

	n := max(len(all)/10, 1)
	for _, a := range all[:n] {
		delete(rc.entries, a.key)
	}
}
