package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"konsinyasi-backend/internal/audit"
	"konsinyasi-backend/internal/auth"
	"konsinyasi-backend/internal/config"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/response"
	"konsinyasi-backend/internal/testutil"
)

var cfg = &config.Config{JWTSecret: strings.Repeat("s", 32)}

func newApp(db *gorm.DB) *fiber.App {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler(logger)})
	app.Post("/register", auth.RegisterHandler(db))
	app.Post("/login", auth.LoginHandler(db, cfg))

	protected := app.Group("", auth.JWTMiddleware(cfg))
	protected.Get("/user", auth.MeHandler(db))
	protected.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(audit.ActorFromContext(c.UserContext()))
	})
	protected.Get("/admin-only", auth.RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func post(t *testing.T, app *fiber.App, path string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func get(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func register(t *testing.T, app *fiber.App, name, email string) map[string]any {
	t.Helper()
	status, body := post(t, app, "/register", auth.RegisterRequest{Name: name, Email: email, Password: "password123"})
	require.Equal(t, fiber.StatusCreated, status, body)
	return body["data"].(map[string]any)
}

func login(t *testing.T, app *fiber.App, email string) string {
	t.Helper()
	status, body := post(t, app, "/login", auth.LoginRequest{Email: email, Password: "password123"})
	require.Equal(t, fiber.StatusOK, status, body)
	return body["data"].(map[string]any)["token"].(string)
}

func TestFirstUserBecomesAdmin(t *testing.T) {
	app := newApp(testutil.NewDB(t))

	first := register(t, app, "Ayu", "ayu@example.com")
	second := register(t, app, "Budi", "BUDI@example.com ")
	assert.Equal(t, string(models.RoleAdmin), first["role"])
	assert.Equal(t, string(models.RoleSalesman), second["role"])
	assert.Equal(t, "budi@example.com", second["email"])

	status, body := post(t, app, "/register", auth.RegisterRequest{Name: "Dup", Email: "ayu@example.com", Password: "password123"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "unique", body["errors"].(map[string]any)["email"])
}

func TestLoginAndRoles(t *testing.T) {
	app := newApp(testutil.NewDB(t))
	register(t, app, "Ayu", "ayu@example.com")
	register(t, app, "Budi", "budi@example.com")

	adminToken := login(t, app, "ayu@example.com")
	salesToken := login(t, app, "budi@example.com")

	assert.Equal(t, fiber.StatusOK, get(t, app, "/user", adminToken))
	assert.Equal(t, fiber.StatusNoContent, get(t, app, "/admin-only", adminToken))
	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/admin-only", salesToken))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/user", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/user", "garbage"))

	status, _ := post(t, app, "/login", auth.LoginRequest{Email: "ayu@example.com", Password: "wrong-password"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestMiddlewareSetsAuditActor(t *testing.T) {
	app := newApp(testutil.NewDB(t))
	register(t, app, "Ayu", "ayu@example.com")
	token := login(t, app, "ayu@example.com")

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var actor audit.Actor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&actor))
	assert.Equal(t, "Ayu", actor.UserName)
	assert.NotZero(t, actor.UserID)
}
