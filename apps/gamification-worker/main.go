package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/verma04/thrico-backend-services-sub003/internal/badges"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/internal/consumer"
	"github.com/verma04/thrico-backend-services-sub003/internal/engine"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification"
	"github.com/verma04/thrico-backend-services-sub003/internal/idempotency"
	"github.com/verma04/thrico-backend-services-sub003/internal/leaderboard"
	"github.com/verma04/thrico-backend-services-sub003/internal/migration"
	"github.com/verma04/thrico-backend-services-sub003/internal/notification"
	"github.com/verma04/thrico-backend-services-sub003/internal/observability"
	"github.com/verma04/thrico-backend-services-sub003/internal/outbox"
	"github.com/verma04/thrico-backend-services-sub003/internal/points"
	"github.com/verma04/thrico-backend-services-sub003/internal/ranks"
	"github.com/verma04/thrico-backend-services-sub003/internal/ratelimit"
	"github.com/verma04/thrico-backend-services-sub003/internal/redisclient"
	"github.com/verma04/thrico-backend-services-sub003/internal/rules"
	"github.com/verma04/thrico-backend-services-sub003/internal/server"
	"github.com/verma04/thrico-backend-services-sub003/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisclient.Module,
		clock.Module,
		migration.Module,

		// Reward pipeline
		gamification.Module,
		idempotency.Module,
		ratelimit.Module,
		rules.Module,
		points.Module,
		badges.Module,
		ranks.Module,

		// Side effects
		leaderboard.Module,
		notification.Module,
		outbox.Module,

		engine.Module,
		consumer.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.App.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.App.NodeID, err)
	}
	return node, nil
}
