package migration

import (
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.Database.AutoMigrate {
			log.Info("schema migrations disabled")
			return nil
		}
		if err := Apply(conn, cfg.Database.Type); err != nil {
			return err
		}
		log.Info("schema up to date", zap.String("dialect", cfg.Database.Type))
		return nil
	}),
)
