package bootstrap

import (
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"

	_ "github.com/Anurag-amrev-7557/FxSync-sub003/docs"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/gateway"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/session"
)

type HandlerParams struct {
	fx.In

	SessionHandler *session.Handler
	WSServer       *gateway.WSServer
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/v1")

	params.SessionHandler.RegisterRoutes(api)
	api.GET("/sessions/:id/ws", params.WSServer.HandleConnection)

	e.GET("/swagger/*", echoSwagger.EchoWrapHandler())
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideLogger,
	),
	fx.Invoke(RegisterRoutes),
)
