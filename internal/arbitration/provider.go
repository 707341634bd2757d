package arbitration

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func ProvideStore(redisClient *redis.Client) *Store {
	return NewStore(redisClient)
}

var Module = fx.Options(
	fx.Provide(
		ProvideStore,
	),
)
