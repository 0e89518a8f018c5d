package routes

import (
    "context"
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"
)

const inMemory = "in-memory"

// RegisterHealthRoutes adds liveness/readiness style endpoints. Stores that
// fall back to memory in development report "in-memory" and count as healthy.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
    app.Get("/healthz", func(c *fiber.Ctx) error {
        dbStatus := inMemory
        redisStatus := "disabled"
        healthy := true

        ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
        defer cancel()
        if d.DB != nil {
            dbStatus = "ok"
            if err := d.DB.Ping(ctx); err != nil {
                dbStatus = err.Error()
                healthy = false
            }
        }
        if d.Cache != nil {
            redisStatus = "ok"
            if err := d.Cache.Ping(ctx).Err(); err != nil {
                redisStatus = err.Error()
                healthy = false
            }
        }
        status := http.StatusOK
        if !healthy {
            status = http.StatusServiceUnavailable
        }
        return c.Status(status).JSON(fiber.Map{
            "status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus},
            "timestamp": time.Now().UTC().Format(time.RFC3339Nano),
        })
    })
}
