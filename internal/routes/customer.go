package routes

import (
    "net/http"

    "github.com/gofiber/fiber/v2"

    "github.com/congo-pay/miniwallet/internal/apperr"
    "github.com/congo-pay/miniwallet/internal/customer"
    "github.com/congo-pay/miniwallet/internal/jsend"
)

// RegisterCustomerRoutes wires customer initialization.
func RegisterCustomerRoutes(r fiber.Router, customers *customer.Service, limiter fiber.Handler) {
    r.Post("/init", limiter, func(c *fiber.Ctx) error {
        var req struct {
            CustomerXID string `json:"customer_xid" form:"customer_xid"`
        }
        if err := c.BodyParser(&req); err != nil {
            return jsend.Render(c, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
        }
        token, err := customers.Initialize(c.UserContext(), req.CustomerXID)
        if err != nil {
            return jsend.Render(c, err)
        }
        return jsend.Success(c, http.StatusCreated, fiber.Map{"token": token})
    })
}
