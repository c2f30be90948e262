package attachment

import (
	"go.uber.org/fx"
)

var Module = fx.Module("attachment.service",
	fx.Provide(NewService),
)
