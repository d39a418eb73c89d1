package middleware

import (
	"hawkinsfarm/internal/common"
	"hawkinsfarm/internal/services"

	"github.com/labstack/echo/v4"
)

// RequireOperation rejects callers whose role may not perform op. Ownership
// checks stay in the services.
func RequireOperation(op services.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, _ := common.GetIdentityFromContext(c.Request().Context())
			if err := services.Authorize(identity, op); err != nil {
				return common.SendDomainError(c, err)
			}
			return next(c)
		}
	}
}
