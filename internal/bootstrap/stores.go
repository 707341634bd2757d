package bootstrap

import (
	"go.uber.org/fx"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/peer"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/session"
)

func RunMigrations(peerStore *peer.Store) error {
	return peerStore.Migrate()
}

var StoresModule = fx.Options(
	arbitration.Module,
	session.Module,
	peer.Module,
	fx.Invoke(RunMigrations),
)
