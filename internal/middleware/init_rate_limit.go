package middleware

import (
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/redis/go-redis/v9"
)

// InitRateLimit limits customer initialization attempts per client IP using
// Redis if available.
func InitRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
    if maxPerMin <= 0 {
        maxPerMin = 30
    }
    return func(c *fiber.Ctx) error {
        if cache == nil {
            return c.Next() // no-op without Redis
        }
        key := "rl:init:" + c.IP()
        cnt, err := cache.Incr(c.UserContext(), key).Result()
        if err != nil {
            return c.Next() // fail-open on cache errors
        }
        if cnt == 1 {
            cache.Expire(c.UserContext(), key, time.Minute)
        }
        if cnt > int64(maxPerMin) {
            return fiber.NewError(http.StatusTooManyRequests, "too many initialization attempts, try again later")
        }
        return c.Next()
    }
}
