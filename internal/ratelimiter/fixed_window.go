package ratelimiter

import (
	"sync"
	"time"
)

// FixedWindowRateLimiter counts requests per client IP inside a fixed
// window and resets the whole table when the window rolls over.
type FixedWindowRateLimiter struct {
	sync.RWMutex
	clients map[string]int
	limit   int
	window  time.Duration
}

func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowRateLimiter {
	rl := &FixedWindowRateLimiter{
		clients: make(map[string]int),
		limit:   limit,
		window:  window,
	}
	go rl.cleanup()
	return rl
}

func (rl *FixedWindowRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	for range ticker.C {
		rl.Lock()
		rl.clients = make(map[string]int)
		rl.Unlock()
	}
}

func (rl *FixedWindowRateLimiter) Allow(ip string) (bool, time.Duration) {
	rl.RLock()
	count, exists := rl.clients[ip]
	rl.RUnlock()

	if !exists || count < rl.limit {
		rl.Lock()
		rl.clients[ip]++
		rl.Unlock()
		return true, 0
	}

	return false, rl.window
}
