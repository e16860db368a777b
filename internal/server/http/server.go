package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/database"
	"github.com/Additional-Code/procura/internal/observability"
	"github.com/Additional-Code/procura/internal/presentation/http/response"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(RegisterReadiness, Run),
)

// NewEcho configures the Echo router with basic middleware.
func NewEcho(cfg config.Config, obs *observability.Manager, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	if obs != nil && obs.TracingEnabled() {
		e.Use(otelecho.Middleware(cfg.Observability.ServiceName))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if obs != nil && obs.MetricsEnabled() && obs.MetricsHandler() != nil {
		e.GET(cfg.Observability.PrometheusPath, echo.WrapHandler(obs.MetricsHandler()))
	}

	return e
}

// RegisterReadiness exposes /health/ready, which fails while the database is unreachable.
func RegisterReadiness(e *echo.Echo, conns *database.Connections) {
	e.GET("/health/ready", func(c echo.Context) error {
		if err := conns.Ping(c.Request().Context()); err != nil {
			return response.New(c).WithError(errorbank.Unavailable("database unavailable", errorbank.WithCause(err))).Build()
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})
}

// errorHandler renders errors escaping handlers, such as unknown routes or
// recovered panics, with the same envelope handlers use.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var appErr *errorbank.AppError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
		case errors.As(err, &httpErr):
			appErr = fromHTTPError(httpErr)
		default:
			appErr = errorbank.Internal("internal error", errorbank.WithCause(err))
		}

		if appErr.Kind() == errorbank.KindInternal {
			logger.Error("http request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		if buildErr := response.New(c).WithError(appErr).Build(); buildErr != nil {
			logger.Warn("write error response", zap.Error(buildErr))
		}
	}
}

func fromHTTPError(he *echo.HTTPError) *errorbank.AppError {
	message := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok && m != "" {
		message = m
	}
	opts := []errorbank.Option{errorbank.WithCause(he)}
	switch he.Code {
	case http.StatusBadRequest:
		return errorbank.BadRequest(message, opts...)
	case http.StatusUnauthorized:
		return errorbank.Unauthorized(message, opts...)
	case http.StatusForbidden:
		return errorbank.Forbidden(message, opts...)
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return errorbank.NotFound(message, opts...)
	case http.StatusConflict:
		return errorbank.Conflict(message, opts...)
	case http.StatusServiceUnavailable:
		return errorbank.Unavailable(message, opts...)
	default:
		if he.Code >= 400 && he.Code < 500 {
			return errorbank.BadRequest(message, opts...)
		}
		return errorbank.Internal(message, opts...)
	}
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:    addr,
		Handler: e,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
