package routes

import (
    "fmt"
    "log/slog"
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/gofiber/fiber/v2/middleware/logger"
    "github.com/gofiber/fiber/v2/middleware/recover"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/redis/go-redis/v9"

    "github.com/congo-pay/miniwallet/internal/clock"
    "github.com/congo-pay/miniwallet/internal/config"
    "github.com/congo-pay/miniwallet/internal/customer"
    "github.com/congo-pay/miniwallet/internal/ledger"
    "github.com/congo-pay/miniwallet/internal/metrics"
    "github.com/congo-pay/miniwallet/internal/middleware"
    "github.com/congo-pay/miniwallet/internal/notification"
    "github.com/congo-pay/miniwallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
    Cfg     config.Config
    DB      *pgxpool.Pool
    Cache   *redis.Client
    Logger  *slog.Logger
    Metrics *metrics.Metrics
    Clock   clock.Clock
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
    // Enforce DB/Redis presence outside of dev, even though config also checks.
    if !d.Cfg.IsDevelopment() {
        if d.DB == nil {
            return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
        }
        if d.Cache == nil {
            return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
        }
    }
    if d.Logger == nil {
        d.Logger = slog.Default()
    }
    if d.Clock == nil {
        d.Clock = clock.RealClock{}
    }

    // Middlewares
    app.Use(recover.New())
    app.Use(middleware.RequestID())
    // Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
    app.Use(logger.New(logger.Config{
        Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
        TimeFormat: "15:04:05",
        TimeZone:   "Local",
    }))
    app.Use(middleware.Audit(d.Logger))
    app.Use(d.Metrics.Middleware())

    // Health
    RegisterHealthRoutes(app, d)
    if d.Metrics != nil {
        app.Get("/metrics", d.Metrics.Handler())
    }

    // Services and handlers
    var store ledger.Store
    var customerRepo customer.Repository
    if d.DB != nil {
        store = ledger.NewPostgresLedger(d.DB, d.Cfg.LockTimeout)
        customerRepo = customer.NewPostgresRepository(d.DB)
    } else {
        store = ledger.NewInMemory(ledger.WithLockTimeout(d.Cfg.LockTimeout))
        customerRepo = customer.NewMemoryRepository()
    }

    customerSvc := customer.NewService(customerRepo, d.Clock)
    var resolver customer.Resolver = customerSvc
    if d.Cache != nil {
        resolver = customer.NewCachedResolver(customerSvc, d.Cache, d.Cfg.TokenCacheTTL, d.Logger)
    }

    walletSvc := wallet.NewService(store, d.Clock, d.Metrics)
    notifier := notification.NewLoggerNotifier(d.Logger)
    walletHandler := wallet.NewHandler(walletSvc, notifier, d.Logger)

    // API routes
    api := app.Group("/api/v1")
    api.Get("/ping", func(c *fiber.Ctx) error {
        return c.Status(http.StatusOK).JSON(fiber.Map{
            "status":     "ok",
            "request_id": middleware.RequestIDFrom(c),
            "timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
        })
    })

    // Public routes
    RegisterCustomerRoutes(api, customerSvc, middleware.InitRateLimit(d.Cache, d.Cfg.InitRateLimit))

    // Protected routes
    protected := api.Group("",
        middleware.TokenAuth(resolver),
        middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
    )
    RegisterWalletRoutes(protected, walletHandler)

    return nil
}
