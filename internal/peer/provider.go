package peer

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideStore(db *gorm.DB) *Store {
	return NewStore(db)
}

var Module = fx.Options(
	fx.Provide(
		ProvideStore,
	),
)
