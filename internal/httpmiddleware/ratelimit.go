package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"courtboard/internal/clock"
	"courtboard/internal/identity"
)

// SimpleTokenBucket is an in-memory rate limiter keyed by signed-in user,
// or by client IP for anonymous requests.
type SimpleTokenBucket struct {
	capacity int
	rate     int
	clock    clock.Clock
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates limiter with capacity tokens and rate per minute.
func NewSimpleTokenBucket(capacity, perMinute int, clk clock.Clock) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &SimpleTokenBucket{
		capacity: capacity,
		rate:     perMinute,
		clock:    clk,
		state:    make(map[string]*bucket),
	}
}

// GinMiddleware returns gin handler enforcing the limit. Mount it after
// authentication so signed-in users get their own bucket.
func (l *SimpleTokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(key(c)) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func key(c *gin.Context) string {
	if u, ok := identity.FromContext(c.Request.Context()); ok {
		return "user:" + u.ID
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func (l *SimpleTokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := l.clock.Now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
