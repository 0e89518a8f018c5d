package routes

import (
    "github.com/gofiber/fiber/v2"

    "github.com/congo-pay/miniwallet/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
    r.Post("/wallet", h.Enable)
    r.Patch("/wallet", h.Disable)
    r.Get("/wallet", h.View)
    r.Post("/wallet/deposits", h.Deposit)
    r.Post("/wallet/withdrawals", h.Withdraw)
    r.Get("/wallet/transactions", h.Transactions)
}
