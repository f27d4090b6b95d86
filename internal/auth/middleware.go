package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const claimsKey = "claims"

// BearerMiddleware rejects requests without a valid "Authorization: Bearer"
// token and stores the claims in the request locals.
func BearerMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenStr) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims, err := ValidateToken(strings.TrimSpace(tokenStr), secret)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// RequireScope must run after BearerMiddleware.
func RequireScope(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		if claims == nil || !claims.HasScope(scope) {
			return fiber.NewError(fiber.StatusForbidden, "token lacks scope "+scope)
		}
		return c.Next()
	}
}

// ClaimsFrom returns the claims stored by BearerMiddleware, or nil.
func ClaimsFrom(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(claimsKey).(*Claims)
	return claims
}
