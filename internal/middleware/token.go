package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/miniwallet/internal/apperr"
	"github.com/congo-pay/miniwallet/internal/customer"
	"github.com/congo-pay/miniwallet/internal/jsend"
)

const (
	customerLocal = "customer"
	tokenScheme   = "token "
)

// TokenAuth resolves the "Authorization: Token <token>" header into a
// customer identity stored on the request.
func TokenAuth(resolver customer.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if authz == "" {
			return jsend.Render(c, apperr.New(apperr.KindUnauthorized, "", "missing token"))
		}
		if !strings.HasPrefix(strings.ToLower(authz), tokenScheme) {
			return jsend.Render(c, apperr.New(apperr.KindUnauthorized, "", "incorrect authorization signature: 'Token <my token>'"))
		}
		token := strings.TrimSpace(authz[len(tokenScheme):])

		who, err := resolver.Resolve(c.UserContext(), token)
		if err != nil {
			return jsend.Render(c, err)
		}
		c.Locals(customerLocal, who)
		return c.Next()
	}
}

// Customer returns the identity resolved by TokenAuth.
func Customer(c *fiber.Ctx) (customer.Identity, bool) {
	who, ok := c.Locals(customerLocal).(customer.Identity)
	return who, ok
}
