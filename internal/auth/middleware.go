package auth

import (
	echo "github.com/labstack/echo/v4"

	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/presentation/http/response"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

// Middleware rejects requests without a principal and stores it on the
// request context for handlers and services.
func Middleware(cfg config.Auth) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			p, ok := ParsePrincipal(req.Header.Get(cfg.UserHeader), req.Header.Get(cfg.RoleHeader))
			if !ok {
				return response.New(c).WithError(errorbank.Unauthorized("authentication required")).Build()
			}
			c.SetRequest(req.WithContext(WithPrincipal(req.Context(), p)))
			return next(c)
		}
	}
}
