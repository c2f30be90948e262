package order

import (
	"github.com/smallbiznis/learnway/internal/order/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.NewRepository),
)
