// Package status holds the transient, self-expiring status message shown to the player.
package status

import (
	"sync"
	"time"
)

// DefaultTTL is how long a message stays up when no TTL is configured.
const DefaultTTL = 3 * time.Second

// Board holds at most one message. Posting replaces the current message and
// restarts the expiry; the previous expiry is cancelled.
type Board struct {
	mu    sync.Mutex
	ttl   time.Duration
	msg   string
	gen   uint64
	timer *time.Timer
}

// NewBoard creates a Board whose messages expire after ttl (DefaultTTL if ttl <= 0).
func NewBoard(ttl time.Duration) *Board {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Board{ttl: ttl}
}

// Post replaces the current message.
func (b *Board) Post(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.msg = msg
	b.timer = time.AfterFunc(b.ttl, func() { b.expire(gen) })
}

// expire clears the message only if it is still the one that scheduled this expiry.
func (b *Board) expire(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen == gen {
		b.msg = ""
		b.timer = nil
	}
}

// Current returns the live message, or "" if none.
func (b *Board) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msg
}

// Clear removes the current message immediately.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	b.msg = ""
}
