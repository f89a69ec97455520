package autopilot

import (
	"sync"
	"time"
)

// Blacklist is the per-ticker cooldown map. Expired entries are
// cleared lazily on read.
type Blacklist struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewBlacklist creates an empty cooldown map.
func NewBlacklist() *Blacklist {
	return &Blacklist{until: make(map[string]time.Time), now: time.Now}
}

// Add places a ticker on cooldown for ttl.
func (b *Blacklist) Add(ticker string, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.until[ticker] = b.now().Add(ttl)
}

// Contains reports whether a ticker is still cooling down.
func (b *Blacklist) Contains(ticker string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiry, ok := b.until[ticker]
	if !ok {
		return false
	}
	if b.now().After(expiry) {
		delete(b.until, ticker)
		return false
	}
	return true
}

// Snapshot exports the live cooldowns as ticker -> expiry epoch
// seconds, for bus persistence.
func (b *Blacklist) Snapshot() map[string]int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	out := make(map[string]int64, len(b.until))
	for ticker, expiry := range b.until {
		if now.After(expiry) {
			delete(b.until, ticker)
			continue
		}
		out[ticker] = expiry.Unix()
	}
	return out
}

// Restore merges persisted cooldowns back in after a restart. Already
// expired entries are ignored.
func (b *Blacklist) Restore(snapshot map[string]int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for ticker, epoch := range snapshot {
		expiry := time.Unix(epoch, 0)
		if expiry.After(now) {
			b.until[ticker] = expiry
		}
	}
}
