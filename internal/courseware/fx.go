package courseware

import (
	"github.com/smallbiznis/learnway/internal/courseware/provisioner"
	"github.com/smallbiznis/learnway/internal/courseware/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("courseware.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(provisioner.New),
)
