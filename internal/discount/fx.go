package discount

import (
	"github.com/smallbiznis/learnway/internal/discount/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.service",
	fx.Provide(repository.NewRepository),
)
