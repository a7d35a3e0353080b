package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/apperr"
)

// RequirePermission returns middleware that runs the access policy for the
// route's permission before the handler. Record-level scoping is applied
// again by the records service once the target rows are known.
func RequirePermission(perm Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromContext(c.Request().Context())
			if p == nil {
				return apperr.Unauthenticated("user id not provided")
			}
			if err := Authorize(p, perm).Err(); err != nil {
				return err
			}
			return next(c)
		}
	}
}
