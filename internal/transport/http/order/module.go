package order

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/config"
)

// Module wires HTTP order handlers behind the principal middleware.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(func(e *echo.Echo, cfg config.Config, h *Handler) {
		Register(e, h, auth.Middleware(cfg.Auth))
	}),
)
