package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makeasinger/edusong/internal/telemetry"
	"github.com/makeasinger/edusong/pkg/response"
)

// RateLimiter is a fixed-window limiter keyed by client IP
type RateLimiter struct {
	redis  *redis.Client
	logger *zap.Logger
}

func NewRateLimiter(redisClient *redis.Client, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{redis: redisClient, logger: logger.Named("ratelimit")}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxRequests <= 0 {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, c.IP())
		ctx := c.UserContext()

		// Increment counter
		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// If Redis fails, allow the request but log the error
			rl.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			return c.Next()
		}

		// Set expiration on first request
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			telemetry.RateLimitRejects.Inc()
			// Get TTL for retry-after header
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		// Add rate limit headers
		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// LimitWhen applies Limit only to requests for which when returns true.
// Other requests pass through without touching the counter.
func (rl *RateLimiter) LimitWhen(keyPrefix string, maxRequests int, window time.Duration, when func(c *fiber.Ctx) bool) fiber.Handler {
	limit := rl.Limit(keyPrefix, maxRequests, window)
	return func(c *fiber.Ctx) error {
		if !when(c) {
			return c.Next()
		}
		return limit(c)
	}
}

// GenerationLimit limits requests that start a lyrics and song generation
func (rl *RateLimiter) GenerationLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("generation", maxPerHour, time.Hour)
}

// GenerationLimitWhen shares the GenerationLimit quota but only counts
// requests for which starts returns true
func (rl *RateLimiter) GenerationLimitWhen(maxPerHour int, starts func(c *fiber.Ctx) bool) fiber.Handler {
	return rl.LimitWhen("generation", maxPerHour, time.Hour, starts)
}
