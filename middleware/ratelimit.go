package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/dmcompanion/api/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an idle client keeps its bucket before the
// janitor reclaims it.
const limiterIdleTTL = 10 * time.Minute

const (
	defaultRPS   = 100
	defaultBurst = 200
)

type clientLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimit enforces a per-client-IP token bucket sized from the security
// config. Zero or negative settings fall back to the defaults rather than
// locking every client out.
func RateLimit(sec config.SecurityConfig) gin.HandlerFunc {
	rps := sec.RateLimitRPS
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := sec.RateLimitBurst
	if burst <= 0 {
		burst = defaultBurst
	}

	var mu sync.Mutex
	clients := make(map[string]*clientLimiter)

	go func() {
		ticker := time.NewTicker(limiterIdleTTL / 2)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-limiterIdleTTL)
			mu.Lock()
			for ip, cl := range clients {
				if cl.lastSeen.Before(cutoff) {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			cl = &clientLimiter{bucket: rate.NewLimiter(rate.Limit(rps), burst)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.bucket.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
