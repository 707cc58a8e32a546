package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// StartRateLimit limits verification-start attempts per account (falling
// back to client IP) using Redis if available. Fail-open: a cache outage
// never blocks verification.
func StartRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			UserID string `json:"user_id"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.UserID)
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:verify:" + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many verification attempts, try again later")
		}
		return c.Next()
	}
}
