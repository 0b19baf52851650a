package gamification

import (
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("gamification.repository",
	fx.Provide(repository.Provide),
)
