package session

import (
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/peer"
)

func ProvideStore(redisClient *redis.Client) *Store {
	return NewStore(redisClient)
}

func ProvideHandler(store *Store, peerStore *peer.Store, coordinator *arbitration.Coordinator, logger *slog.Logger) *Handler {
	return NewHandler(store, peerStore, coordinator, logger.With("handler", "session"))
}

var Module = fx.Options(
	fx.Provide(
		ProvideStore,
		ProvideHandler,
	),
)
