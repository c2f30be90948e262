package contract

import (
	"github.com/smallbiznis/learnway/internal/contract/repository"
	"github.com/smallbiznis/learnway/internal/contract/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contract.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
