package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/miniwallet/internal/customer"
)

func TestTokenAuthResolvesCustomer(t *testing.T) {
	customers := customer.NewService(customer.NewMemoryRepository(), nil)
	xid := uuid.NewString()
	token, err := customers.Initialize(context.Background(), xid)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	app := fiber.New()
	app.Get("/me", TokenAuth(customers), func(c *fiber.Ctx) error {
		who, ok := Customer(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(who.XID)
	})

	cases := []struct {
		header string
		status int
	}{
		{"", fiber.StatusUnauthorized},
		{"Bearer " + token, fiber.StatusUnauthorized},
		{"Token wrong", fiber.StatusUnauthorized},
		{"Token " + token, fiber.StatusOK},
		{"token " + token, fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set(fiber.HeaderAuthorization, tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("header %q: expected %d got %d", tc.header, tc.status, resp.StatusCode)
		}
	}
}

func TestInitRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/init", InitRateLimit(cache, 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	for i, want := range []int{fiber.StatusCreated, fiber.StatusCreated, fiber.StatusTooManyRequests} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/init", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("attempt %d: expected %d got %d", i+1, want, resp.StatusCode)
		}
	}

	mr.FastForward(2 * time.Minute)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/init", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected window to reset, got %d", resp.StatusCode)
	}
}
