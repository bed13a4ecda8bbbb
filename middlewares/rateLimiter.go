package middlewares

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"spotsort-be/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Counter is the slice of the redis client the rate limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

type RateLimit struct {
	// Prefix namespaces the redis keys, e.g. "ratelimit".
	Prefix string
	// Group separates counters of different route groups.
	Group  string
	Limit  int
	Window time.Duration
}

// RateLimiter allows Limit requests per client IP in each fixed Window.
// Redis failures let the request through.
func RateLimiter(counter Counter, rl RateLimit, m *metrics.Metrics, logger logrus.FieldLogger) gin.HandlerFunc {
	if rl.Prefix == "" {
		rl.Prefix = "ratelimit"
	}
	if rl.Window <= 0 {
		rl.Window = 15 * time.Minute
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := fmt.Sprintf("%s:%s:%s", rl.Prefix, rl.Group, c.ClientIP())

		count, err := counter.Incr(ctx, key).Result()
		if err != nil {
			logger.WithError(err).WithField("group", rl.Group).Warn("rate limiter unavailable")
			c.Next()
			return
		}

		// Set TTL only for the first increment of a window
		if count == 1 {
			if err := counter.Expire(ctx, key, rl.Window).Err(); err != nil {
				logger.WithError(err).WithField("group", rl.Group).Warn("rate limiter could not set window")
			}
		}

		if count > int64(rl.Limit) {
			m.Limited(rl.Group)
			retryAfter, err := counter.TTL(ctx, key).Result()
			if err != nil || retryAfter < 0 {
				retryAfter = rl.Window
			}
			c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests, please try again later",
				"retry_after": retryAfter.Seconds(),
			})
			return
		}

		c.Next()
	}
}
