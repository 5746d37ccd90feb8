package migration

import (
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

// Run migrates the schema for the configured dialect.
func Run(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if !cfg.DBAutoMigrate {
		log.Info("schema migration disabled")
		return nil
	}
	return Apply(conn, cfg, log)
}

// Apply migrates the schema regardless of DATABASE_AUTO_MIGRATE.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DBType != db.TypePostgres {
		log.Info("migrating schema with gorm", zap.String("type", cfg.DBType))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	log.Info("applying postgres migrations")
	return RunMigrations(sqlDB)
}
