// middleware/auth.go
package middleware

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware resolves the caller identity set by the Gateway.
// X-User-ID must be a positive integer; anything else leaves the request anonymous
// (user_id = 0) and it is up to the route to refuse it.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var userID int64
		if raw := c.Get("X-User-ID"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				log.Printf("⚠️ [USER_CTX] ignoring malformed X-User-ID %q on %s", raw, c.Path())
			} else {
				userID = id
			}
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}

// UserID returns the identity stored by UserContextMiddleware, 0 when anonymous.
func UserID(c *fiber.Ctx) int64 {
	id, _ := c.Locals("user_id").(int64)
	return id
}
