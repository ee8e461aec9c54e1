package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// newRateLimiter builds a per-IP in-memory rate limiter admitting rps
// requests per one-second window, guarding the order-submission endpoints
// from a runaway client. burst is not used: the limiter has no separate
// burst allowance.
func newRateLimiter(rps int64, burst int64) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: time.Second,
		Limit:  rps,
	}
	store := memory.NewStore()
	instance := limiter.New(store, rate)

	return func(c *gin.Context) {
		ctx, err := instance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.Next()
			return
		}
		if ctx.Reached {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
