package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused client limiter is kept.
const idleLimiterTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter

	requestsPerSecond float64
	burst             int
	lastSweep         time.Time
	now               func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients:           make(map[string]*clientLimiter),
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		now:               time.Now,
	}
}

// Allow checks if a request should be allowed
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > idleLimiterTTL {
		for id, c := range rl.clients {
			if now.Sub(c.lastSeen) > idleLimiterTTL {
				delete(rl.clients, id)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[clientID]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.requestsPerSecond), rl.burst)}
		rl.clients[clientID] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
