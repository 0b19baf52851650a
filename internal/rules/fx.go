package rules

import "go.uber.org/fx"

var Module = fx.Module("gamification.rules",
	fx.Provide(NewLoader),
)
