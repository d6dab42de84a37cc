package service

import (
	"context"
	"sync"
	"time"

	"github.com/atinyakov/PartyBooth/internal/clock"
)

// RevealCache holds plaintext passwords of freshly created devices so an
// admin can read each one back exactly once. Entries expire after ttl.
type RevealCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[string]revealEntry
}

type revealEntry struct {
	password string
	expires  time.Time
}

// NewRevealCache returns an empty cache. A nil clock means the real one.
func NewRevealCache(ttl time.Duration, c clock.Clock) *RevealCache {
	if c == nil {
		c = clock.Real()
	}
	return &RevealCache{ttl: ttl, clock: c, entries: make(map[string]revealEntry)}
}

// Put stores password for deviceID, replacing any earlier entry.
func (c *RevealCache) Put(deviceID, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for id, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, id)
		}
	}
	c.entries[deviceID] = revealEntry{password: password, expires: now.Add(c.ttl)}
}

// Take returns and removes the password for deviceID.
func (c *RevealCache) Take(deviceID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[deviceID]
	if !ok {
		return "", false
	}
	delete(c.entries, deviceID)
	if !c.clock.Now().Before(e.expires) {
		return "", false
	}
	return e.password, true
}

// Len reports the number of entries, expired ones included.
func (c *RevealCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type revealKey struct{}

// WithRevealCache returns a copy of ctx carrying c.
func WithRevealCache(ctx context.Context, c *RevealCache) context.Context {
	return context.WithValue(ctx, revealKey{}, c)
}

// RevealCacheFrom returns the cache carried by ctx, or nil.
func RevealCacheFrom(ctx context.Context) *RevealCache {
	c, _ := ctx.Value(revealKey{}).(*RevealCache)
	return c
}
