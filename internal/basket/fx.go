package basket

import (
	"github.com/smallbiznis/learnway/internal/basket/repository"
	"github.com/smallbiznis/learnway/internal/basket/service"
	"go.uber.org/fx"
)

var Module = fx.Module("basket.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
