package gateway

import (
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/peer"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/session"
)

func ProvideBridge(redisClient *redis.Client, logger *slog.Logger) *Bridge {
	return NewBridge(redisClient, logger)
}

func ProvideHub(bridge *Bridge, logger *slog.Logger) *Hub {
	return NewHub(bridge, logger)
}

// ProvideCoordinator lives here rather than in the arbitration package
// because the coordinator's broadcast bus is the hub.
func ProvideCoordinator(
	hub *Hub,
	peers *peer.Store,
	snaps *arbitration.Store,
	logger *slog.Logger,
) *arbitration.Coordinator {
	return arbitration.NewCoordinator(hub, peers, snaps, nil, logger)
}

func ProvideWSServer(
	hub *Hub,
	coordinator *arbitration.Coordinator,
	sessions *session.Store,
	peers *peer.Store,
	logger *slog.Logger,
) *WSServer {
	return NewWSServer(hub, coordinator, sessions, peers, logger)
}

var Module = fx.Options(
	fx.Provide(
		ProvideBridge,
		ProvideHub,
		ProvideCoordinator,
		ProvideWSServer,
	),
)
