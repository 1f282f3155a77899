package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trivia-duel/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func whoAmI(c *fiber.Ctx) error {
	user, _ := c.Locals(UserIDKey).(string)
	return c.SendString(user)
}

func send(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestJWTAuthMiddleware(t *testing.T) {
	tokens := utils.NewTokenIssuer("secret", time.Hour)
	other := utils.NewTokenIssuer("other-secret", time.Hour)
	good, err := tokens.Issue("user1")
	require.NoError(t, err)
	forged, err := other.Issue("user1")
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/me", JWTAuthMiddleware(tokens, quiet), whoAmI)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + good, http.StatusOK},
		{"lowercase scheme", "bearer " + good, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"no scheme", good, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			status, body := send(t, app, req)
			assert.Equal(t, tc.status, status)
			if tc.status == http.StatusOK {
				assert.Equal(t, "user1", body)
			}
		})
	}
}

func TestServiceTokenMiddleware(t *testing.T) {
	app := fiber.New()
	app.Post("/admin", ServiceTokenMiddleware("s3cret", quiet), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("X-Service-Token", "s3cret")
	status, _ := send(t, app, req)
	assert.Equal(t, http.StatusNoContent, status)

	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("X-Service-Token", "nope")
	status, _ = send(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = send(t, app, httptest.NewRequest(http.MethodPost, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, status)

	disabled := fiber.New()
	disabled.Post("/admin", ServiceTokenMiddleware("", quiet), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("X-Service-Token", "")
	status, _ = send(t, disabled, req)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestWebsocketAuthMiddleware(t *testing.T) {
	tokens := utils.NewTokenIssuer("secret", time.Hour)
	good, err := tokens.Issue("user2")
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/ws", WebsocketAuthMiddleware(tokens, quiet), whoAmI)

	upgrade := func(target string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		return req
	}

	status, body := send(t, app, upgrade("/ws?token="+good))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user2", body)

	req := upgrade("/ws")
	req.Header.Set("Authorization", "Bearer "+good)
	status, body = send(t, app, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user2", body)

	status, _ = send(t, app, upgrade("/ws"))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = send(t, app, upgrade("/ws?token=bogus"))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = send(t, app, httptest.NewRequest(http.MethodGet, "/ws?token="+good, nil))
	assert.Equal(t, http.StatusUpgradeRequired, status)
}
