package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/gateway"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/health"
)

const version = "1.0.0"

func ProvideHealthHandler(
	db *gorm.DB,
	redis *redis.Client,
	hub *gateway.Hub,
	bridge *gateway.Bridge,
	coordinator *arbitration.Coordinator,
) *health.Handler {
	return health.NewHandler(db, redis, hub, bridge, coordinator, version)
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
