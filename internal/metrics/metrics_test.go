package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	r := New()
	r.ObserveRun("cli", 10, 2, 1, 5*time.Millisecond, nil)
	r.ObserveRun("api", 0, 0, 0, 0, errors.New("boom"))

	if got := testutil.ToFloat64(r.Runs.WithLabelValues("cli", OutcomeOK)); got != 1 {
		t.Errorf("cli ok runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.Runs.WithLabelValues("api", OutcomeError)); got != 1 {
		t.Errorf("api error runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.OverLimit); got != 1 {
		t.Errorf("over limit = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.LastSuccess); got <= 0 {
		t.Errorf("last success not set: %v", got)
	}
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.ObserveRun("cli", 1, 1, 0, time.Second, nil)
	r.ObserveInstall(nil)
	r.ObserveReload("service", errors.New("x"))
}

func TestMiddlewareAndHandler(t *testing.T) {
	r := New()
	app := fiber.New()
	app.Use(r.Middleware())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Get("/metrics", r.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := testutil.ToFloat64(r.APIRequests.WithLabelValues("GET", "/ping", "200")); got != 1 {
		t.Errorf("ping requests = %v, want 1", got)
	}

	r.ObserveReload("service", nil)
	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`whitelister_reloads_total{outcome="ok",reloader="service"} 1`,
		"whitelister_http_requests_total",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
