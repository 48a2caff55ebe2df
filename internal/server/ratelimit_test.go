package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BasicEnforcement(t *testing.T) {
	limiter := NewRateLimiter(2.0, 2)

	assert.True(t, limiter.Allow("client1"))
	assert.True(t, limiter.Allow("client1"))
	assert.False(t, limiter.Allow("client1"), "third request should be rate limited")
	assert.True(t, limiter.Allow("client2"), "clients have separate buckets")
}

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Unix(1000, 0)
	limiter := NewRateLimiter(2.0, 1)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("c"))
	assert.False(t, limiter.Allow("c"))

	now = now.Add(600 * time.Millisecond)
	assert.True(t, limiter.Allow("c"))
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Unix(1000, 0)
	limiter := NewRateLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")
	limiter.Allow("b")
	assert.Equal(t, 2, limiter.Clients())

	now = now.Add(2 * idleLimiterTTL)
	limiter.Allow("c")
	assert.Equal(t, 1, limiter.Clients())
}
