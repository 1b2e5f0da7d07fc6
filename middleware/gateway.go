// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"log"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
)

func rejectGateway(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msg})
}

// GatewayAuthMiddleware only lets requests carrying the gateway service token through.
// The token may come with or without the "Bearer " prefix. Paths in public (health
// checks) skip the check. An empty expected token rejects everything.
func GatewayAuthMiddleware(expectedToken string, public ...string) fiber.Handler {
	if expectedToken == "" {
		log.Println("⚠️  [GATEWAY_AUTH] empty service token, every request will be rejected")
	}
	want := []byte(expectedToken)

	return func(c *fiber.Ctx) error {
		if slices.Contains(public, c.Path()) {
			return c.Next()
		}
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			log.Printf("🚫 [GATEWAY_AUTH] no Authorization header on %s %s", c.Method(), c.Path())
			return rejectGateway(c, "gateway authentication token missing")
		}
		got := []byte(strings.TrimPrefix(header, "Bearer "))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			log.Printf("❌ [GATEWAY_AUTH] bad service token on %s %s", c.Method(), c.Path())
			return rejectGateway(c, "invalid gateway authentication token")
		}
		return c.Next()
	}
}
