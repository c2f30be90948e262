package enrollment

import (
	"github.com/smallbiznis/learnway/internal/enrollment/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("enrollment.service",
	fx.Provide(repository.NewRepository),
)
