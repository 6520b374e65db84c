package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
)

// RequireRole lets the request through when the caller holds one of roles.
// Admins pass every check. Anonymous callers get 401, others 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	need := strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if HasAnyRole(ctx, roles...) {
				return next(c)
			}
			if UserIDFromContext(ctx) == "" {
				return apperr.HTTP(apperr.Unauthorized("authentication required"))
			}
			return apperr.HTTP(apperr.Forbidden("requires role %s", need))
		}
	}
}
