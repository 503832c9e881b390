package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newAuthApp() *fiber.App {
	app := fiber.New()
	app.Use(Auth(testSecret))
	app.Get("/protected", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func signToken(t *testing.T, secret string, expiresAt time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"usr": "admin",
		"exp": expiresAt.Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// Routes registered before the auth group must not be intercepted by it.
// The websocket feed relies on this: browsers cannot set an Authorization
// header on an upgrade request, so it authenticates a ?token= itself.
func TestAuth_RoutesRegisteredBeforeGroupStayPublic(t *testing.T) {
	app := fiber.New()
	app.Get("/ws/events", func(c *fiber.Ctx) error {
		return c.SendString("upgrade")
	})
	api := app.Group("/", Auth(testSecret))
	api.Get("/chats", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/events?token=abc", nil))
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("/ws/events status = %d, want 200 (reached its own handler)", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/chats", nil))
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("/chats status = %d, want 401 without a token", resp.StatusCode)
	}
}

func TestAuth_MissingTokenIs401(t *testing.T) {
	app := newAuthApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuth_ValidTokenPasses(t *testing.T) {
	app := newAuthApp()

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, time.Now().Add(time.Hour)))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuth_ExpiredTokenIs401(t *testing.T) {
	app := newAuthApp()

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, time.Now().Add(-time.Hour)))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuth_WrongSecretIs401(t *testing.T) {
	app := newAuthApp()

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", time.Now().Add(time.Hour)))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}
