package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/audit"
	"konsinyasi-backend/internal/config"
	"konsinyasi-backend/internal/models"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserRoleKey = "user_role"
	CtxUserNameKey = "user_name"
)

// JWTMiddleware authenticates the bearer token and puts the user on both
// fiber locals and the request's user context (for audit attribution).
func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return apperror.Unauthorized("missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return apperror.Unauthorized("Authorization must be 'Bearer <token>'")
		}

		claims, err := ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return apperror.Unauthorized("invalid or expired token")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxUserNameKey, claims.Name)
		c.SetUserContext(audit.WithActor(c.UserContext(), audit.Actor{
			UserID:   claims.UserID,
			UserName: claims.Name,
		}))

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return apperror.Forbidden("role missing from token")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return apperror.Forbidden("you are not allowed to perform this action")
	}
}
