package points

import "go.uber.org/fx"

var Module = fx.Module("gamification.points",
	fx.Provide(NewAwarder),
)
