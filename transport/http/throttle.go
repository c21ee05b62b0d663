package http

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const defaultThrottleIdle = 10 * time.Minute

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Throttle is a per client token bucket for unauthenticated endpoints that
// are attractive to brute force, such as login and registration.
type Throttle struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter

	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time
}

// NewThrottle allows perMinute requests per client with bursts of burst.
func NewThrottle(perMinute, burst int) *Throttle {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		idle:    defaultThrottleIdle,
		now:     time.Now,
	}
}

func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

// Allow consumes a token for key. When none is available it returns the
// whole seconds until one is.
func (t *Throttle) Allow(key string) (bool, int) {
	now := t.now()

	t.mu.Lock()
	cl, ok := t.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.clients[key] = cl
	}
	cl.lastAccess = now
	t.mu.Unlock()

	r := cl.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, int(math.Ceil(t.idle.Seconds()))
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, int(math.Ceil(delay.Seconds()))
	}
	return true, 0
}

// Cleanup drops clients idle for longer than the idle period.
func (t *Throttle) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.idle)
	removed := 0
	for key, cl := range t.clients {
		if cl.lastAccess.Before(cutoff) {
			delete(t.clients, key)
			removed++
		}
	}
	return removed
}

func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

// Run cleans up idle clients until ctx is done.
func (t *Throttle) Run(ctx context.Context) {
	ticker := time.NewTicker(t.idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Cleanup()
		}
	}
}

func throttleMiddleware(t *Throttle, r *responder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ok, retryAfter := t.Allow(c.ClientIP()); !ok {
			r.rateLimited(c, retryAfter, "Too many requests. Please try again later.")
			return
		}
		c.Next()
	}
}
