package enrollcode

import (
	"go.uber.org/fx"
)

var Module = fx.Module("enrollcode.service",
	fx.Provide(New),
)
