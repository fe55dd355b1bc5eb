// Package ratelimit provides a per-identity minimum-interval gate.
// A request is rejected when the same identity was seen less than the
// configured interval ago; idle entries are evicted opportunistically
// so the table cannot grow without bound.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultMinInterval is the minimum gap between requests per identity.
	DefaultMinInterval = time.Second
	// DefaultEntryTTL is the age after which idle entries are evictable.
	DefaultEntryTTL = time.Hour
)

// Limiter gates requests by identity. The check-then-set on the shared
// table is serialized through a mutex so two concurrent calls for the
// same identity cannot both pass inside one interval.
type Limiter struct {
	mu          sync.Mutex
	lastSeen    map[string]time.Time
	minInterval time.Duration
	entryTTL    time.Duration
	now         func() time.Time
}

// New creates a Limiter. Non-positive durations fall back to the
// package defaults.
func New(minInterval, entryTTL time.Duration) *Limiter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if entryTTL <= 0 {
		entryTTL = DefaultEntryTTL
	}
	return &Limiter{
		lastSeen:    make(map[string]time.Time),
		minInterval: minInterval,
		entryTTL:    entryTTL,
		now:         time.Now,
	}
}

// Allow reports whether a request from identity may proceed now.
// A rejected request does not refresh the identity's last-seen time, so
// a client hammering the gate is not locked out forever.
func (l *Limiter) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.lastSeen[identity]; ok && now.Sub(last) < l.minInterval {
		return false
	}

	l.lastSeen[identity] = now
	l.evictLocked(now)
	return true
}

// Evict removes entries idle longer than the entry TTL. The sweeper
// calls this periodically; Allow also evicts on successful requests.
func (l *Limiter) Evict() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evictLocked(l.now())
}

// Len returns the current number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastSeen)
}

func (l *Limiter) evictLocked(now time.Time) int {
	evicted := 0
	for id, last := range l.lastSeen {
		if now.Sub(last) > l.entryTTL {
			delete(l.lastSeen, id)
			evicted++
		}
	}
	return evicted
}
