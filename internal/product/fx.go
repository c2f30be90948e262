package product

import (
	"github.com/smallbiznis/learnway/internal/product/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.NewRepository),
)
