package inventory

import (
	"github.com/smallbiznis/kontago/internal/inventory/lock"
	"github.com/smallbiznis/kontago/internal/inventory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.service",
	lock.Module,
	fx.Provide(service.NewLedger),
)
