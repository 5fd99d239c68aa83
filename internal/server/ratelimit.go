// Package server rate limiting: a token bucket per session throttles chat
// publishes so one peer cannot flood the hub.
package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket sized from RateLimitConfig: Burst tokens
// replenish evenly across RefillInterval. Tokens are whole messages; there
// is no fractional credit.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     int
	burst      int
	interval   time.Duration
	lastRefill time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &rateLimiter{
		tokens:     burst,
		burst:      burst,
		interval:   interval,
		lastRefill: time.Now(),
	}
}

// allow consumes one token if available. lastRefill only advances when at
// least a whole token has accrued, so short bursts of calls do not erase
// partial progress toward the next token.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.lastRefill); elapsed > 0 {
		refill := int(elapsed * time.Duration(rl.burst) / rl.interval)
		if refill > 0 {
			rl.tokens += refill
			if rl.tokens > rl.burst {
				rl.tokens = rl.burst
			}
			rl.lastRefill = now
		}
	}

	if rl.tokens == 0 {
		return false
	}
	rl.tokens--
	return true
}
