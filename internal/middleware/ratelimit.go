package middleware

import (
	"sync"
	"time"

	"blogsphere/internal/apperrors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type ipRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	r        rate.Limit
	b        int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(r rate.Limit, b int) *ipRateLimiter {
	return &ipRateLimiter{visitors: make(map[string]*visitor), r: r, b: b}
}

func (i *ipRateLimiter) getLimiter(ip string, now time.Time) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, exists := i.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(i.r, i.b)}
		i.visitors[ip] = v
	}
	v.lastSeen = now

	// 顺手清理长时间不活跃的 IP
	if len(i.visitors) > 10000 {
		for k, other := range i.visitors {
			if now.Sub(other.lastSeen) > 10*time.Minute {
				delete(i.visitors, k)
			}
		}
	}
	return v.limiter
}

// RateLimit 按客户端 IP 限流，perSecond <= 0 时不限流
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := newIPRateLimiter(rate.Limit(perSecond), burst)
	return func(c *gin.Context) {
		if !limiter.getLimiter(c.ClientIP(), time.Now()).Allow() {
			apperrors.HandleError(c, apperrors.New(apperrors.KindTooManyRequests, "Too many requests, please try again later"))
			return
		}
		c.Next()
	}
}
