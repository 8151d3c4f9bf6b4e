package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const bucketIdleTTL = 30 * time.Minute

// Throttle keeps one token bucket per caller. Buckets unused for
// bucketIdleTTL are dropped on the next sweep so the map does not grow with
// every client that ever called.
type Throttle struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewThrottle(rps float64, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

func (t *Throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastSweep) > bucketIdleTTL {
		for k, b := range t.buckets {
			if now.Sub(b.seen) > bucketIdleTTL {
				delete(t.buckets, k)
			}
		}
		t.lastSweep = now
	}

	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// retryAfter is the time for one token to come back, in whole seconds.
func (t *Throttle) retryAfter() int {
	if t.limit <= 0 {
		return 60
	}
	return max(1, int(math.Ceil(1/float64(t.limit))))
}

func (t *Throttle) reject(c *gin.Context) {
	wait := t.retryAfter()
	c.Header("Retry-After", strconv.Itoa(wait))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":             "too many requests, please slow down",
		"retryAfterSeconds": wait,
	})
}

// PerClient limits by client IP. It guards the sign-in routes.
func (t *Throttle) PerClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.allow("ip:" + c.ClientIP()) {
			t.reject(c)
			return
		}
		c.Next()
	}
}

// PerAccount limits by signed-in account, falling back to the client IP. It
// must run after RequireUser.
func (t *Throttle) PerAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id := GetUserID(c); id != "" {
			key = "user:" + id
		}
		if !t.allow(key) {
			t.reject(c)
			return
		}
		c.Next()
	}
}
