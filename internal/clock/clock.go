package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time so reward windows and leaderboard days can be tested.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystem returns a Clock backed by time.Now in UTC.
func NewSystem() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystem),
)
