package middleware

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/bakery/internal/logger"
	"github.com/neogan74/bakery/internal/metrics"
	"github.com/neogan74/bakery/internal/ratelimit"
)

// RateLimitMiddleware throttles requests per client IP. limiterType labels
// the metrics, e.g. "login".
func RateLimitMiddleware(store *ratelimit.Store, limiterType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if store == nil {
			return c.Next()
		}

		decision := store.Reserve(c.IP())
		metrics.RateLimitActiveClients.WithLabelValues(limiterType).Set(float64(store.Count()))

		c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.OK {
			metrics.RateLimitRequestsTotal.WithLabelValues(limiterType, "exceeded").Inc()

			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))

			GetLogger(c).Warn("Rate limit exceeded",
				logger.String("limiter", limiterType),
				logger.String("ip", c.IP()),
				logger.Int("retry_after", retryAfter))
			return TooManyRequests(c, "Too many requests. Retry after "+strconv.Itoa(retryAfter)+" seconds.")
		}

		metrics.RateLimitRequestsTotal.WithLabelValues(limiterType, "allowed").Inc()
		return c.Next()
	}
}
