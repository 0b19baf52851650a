package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/internal/consumer"
	"github.com/verma04/thrico-backend-services-sub003/internal/leaderboard"
	obslogger "github.com/verma04/thrico-backend-services-sub003/internal/observability/logger"
	obstracing "github.com/verma04/thrico-backend-services-sub003/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(provideReporter),
	fx.Provide(provideStandings),
	fx.Provide(NewEngine),
	fx.Invoke(run),
)

// HealthReporter exposes consumer liveness.
type HealthReporter interface {
	Health() consumer.Health
}

func provideReporter(c *consumer.Consumer) HealthReporter { return c }

func provideStandings(b *leaderboard.Board) StandingsReader { return b }

type EngineParams struct {
	fx.In

	Reporter  HealthReporter
	Standings StandingsReader `optional:"true"`
	Gatherer  prometheus.Gatherer
	Clock     clock.Clock `optional:"true"`
	Config    config.Config
	Log       *zap.Logger
}

// NewEngine builds the router: /health, /metrics and the daily leaderboard read.
func NewEngine(p EngineParams) *gin.Engine {
	if p.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Logger: log.Named("gamification.http"),
		Debug:  !p.Config.IsProduction(),
	}))
	r.Use(obstracing.GinMiddleware())

	r.GET("/health", healthHandler(p.Reporter))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if p.Standings != nil {
		clk := p.Clock
		if clk == nil {
			clk = clock.NewSystem()
		}
		r.GET("/leaderboards/:entityId", leaderboardHandler(p.Standings, clk))
	}
	return r
}

func healthHandler(reporter HealthReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if reporter == nil {
			c.JSON(http.StatusServiceUnavailable, consumer.Health{Status: consumer.StatusStarting})
			return
		}
		h := reporter.Health()
		status := http.StatusOK
		if h.Status == consumer.StatusStale {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, h)
	}
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.String("addr", addr), zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
