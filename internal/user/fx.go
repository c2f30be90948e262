package user

import (
	"github.com/smallbiznis/learnway/internal/user/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.NewRepository),
)
