package migration

import (
	"strings"

	"github.com/smallbiznis/coursedesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply runs SQL migrations on postgres and gorm AutoMigrate elsewhere.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if !strings.EqualFold(cfg.DBType, "postgres") {
		log.Info("applying schema with gorm automigrate", zap.String("db_type", cfg.DBType))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("postgres migrations applied")
	return nil
}
