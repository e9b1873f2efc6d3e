package middleware

import (
	"fmt"
	"math"
	"time"

	"gut-health-kb/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter 以客戶端 IP 區分的令牌桶限流器
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	requests int
	window   time.Duration
	limiters *cache.Cache
}

// NewRateLimiter 每個 IP 在 window 內最多 requests 次，允許 burst 次突發
func NewRateLimiter(requests int, window time.Duration, burst int) *RateLimiter {
	if burst <= 0 {
		burst = requests
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(requests) / window.Seconds()),
		burst:    burst,
		requests: requests,
		window:   window,
		// 閒置的客戶端限流器在兩個時間窗後釋放
		limiters: cache.New(2*window, 4*window),
	}
}

// limiterFor 取得或建立客戶端的限流器
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	if v, ok := rl.limiters.Get(key); ok {
		rl.limiters.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		// 另一個請求剛建立
		if v, ok := rl.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// Allow 檢查是否允許請求
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).Allow()
}

// retryAfter 下一個令牌可用前的秒數
func (rl *RateLimiter) retryAfter() int {
	if rl.requests <= 0 {
		return int(rl.window.Seconds())
	}
	return int(math.Ceil(rl.window.Seconds() / float64(rl.requests)))
}

// RateLimit 限流中間件
func RateLimit(requests int, window time.Duration, burst int) gin.HandlerFunc {
	limiter := NewRateLimiter(requests, window, burst)

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			common.LogInfo("Rate limit exceeded",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)

			c.Header("Retry-After", fmt.Sprintf("%d", limiter.retryAfter()))
			common.RespondError(c, common.ErrTooManyRequests)
			return
		}

		c.Next()
	}
}
