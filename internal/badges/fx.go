package badges

import "go.uber.org/fx"

var Module = fx.Module("gamification.badges",
	fx.Provide(NewTracker),
)
