package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("deposit", "ok", time.Millisecond)
	m.ObserveOperation("deposit", "ok", time.Millisecond)
	m.ObserveOperation("deposit", "duplicate_reference", time.Millisecond)

	if got := testutil.ToFloat64(m.Operations().WithLabelValues("deposit", "ok")); got != 2 {
		t.Fatalf("expected 2 ok deposits, got %v", got)
	}
	if got := testutil.ToFloat64(m.Operations().WithLabelValues("deposit", "duplicate_reference")); got != 1 {
		t.Fatalf("expected 1 duplicate deposit, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("deposit", "ok", time.Millisecond)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/metrics", m.Handler())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	if _, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil)); err != nil {
		t.Fatalf("ping: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `miniwallet_http_requests_total{method="GET",route="/ping",status="200"} 1`) {
		t.Fatalf("expected ping counter in exposition, got:\n%s", body)
	}
}

func TestLabelsSurviveLaterRequests(t *testing.T) {
	m := New()
	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/metrics", m.Handler())
	app.Get("/item", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/item", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })

	for _, method := range []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPost} {
		resp, err := app.Test(httptest.NewRequest(method, "/item", nil))
		if err != nil {
			t.Fatalf("%s /item: %v", method, err)
		}
		resp.Body.Close()
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, want := range []string{
		`miniwallet_http_requests_total{method="GET",route="/item",status="200"} 1`,
		`miniwallet_http_requests_total{method="POST",route="/item",status="201"} 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in exposition, got:\n%s", want, body)
		}
	}
}
