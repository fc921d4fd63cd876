// Package ratelimit protects the bridge against reconnect storms and message
// floods. It combines a fixed-window counter for connection attempts (coarse,
// per-minute, per IP) with a token bucket per live connection (fine-grained,
// tolerant of legitimate bursts), and unifies both signals into a per-IP
// violation counter that can escalate to an automatic ban.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket for one live connection. Tokens are added at a
// fixed rate up to the burst capacity and each relayed message consumes one.
type Limiter struct {
	// tokens is the current number of tokens in the bucket
	tokens float64

	// lastTime is the last time tokens were added to the bucket
	lastTime time.Time

	// rate is the token refill rate (tokens per second)
	rate float64

	// capacity is the maximum number of tokens the bucket can hold
	capacity float64

	// mu protects concurrent access to the bucket
	mu sync.Mutex
}

// NewLimiter creates a token bucket seeded at full burst capacity.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		tokens:   float64(burst),
		lastTime: time.Now(),
		rate:     rate,
		capacity: float64(burst),
	}
}

// Allow refills the bucket proportionally to elapsed time, then consumes one
// token if at least one is available. It returns false when the bucket is
// exhausted.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastTime).Seconds()
	l.lastTime = now

	l.tokens += elapsed * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}

	if l.tokens < 1 {
		return false
	}

	l.tokens--
	return true
}

// Tokens returns the current token count. Exposed for stats reporting.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens
}
