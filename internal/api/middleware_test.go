package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func TestIPRateLimiterBurst(t *testing.T) {
	l := NewIPRateLimiter(1, zap.NewNop())
	defer l.Close()

	app := fiber.New()
	app.Get("/", l.Handler(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	for i := 0; i < 5; i++ {
		if codes[i] != http.StatusNoContent {
			t.Errorf("request %d: expected 204, got %d", i, codes[i])
		}
	}
	if codes[5] != http.StatusTooManyRequests {
		t.Errorf("expected the sixth request to be limited, got %d", codes[5])
	}
}
