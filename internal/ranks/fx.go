package ranks

import "go.uber.org/fx"

var Module = fx.Module("gamification.ranks",
	fx.Provide(NewTracker),
)
