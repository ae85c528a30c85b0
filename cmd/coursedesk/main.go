package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coursedesk/internal/audit"
	"github.com/smallbiznis/coursedesk/internal/authorization"
	"github.com/smallbiznis/coursedesk/internal/bulkoperation"
	"github.com/smallbiznis/coursedesk/internal/clock"
	"github.com/smallbiznis/coursedesk/internal/config"
	"github.com/smallbiznis/coursedesk/internal/course"
	"github.com/smallbiznis/coursedesk/internal/lock"
	"github.com/smallbiznis/coursedesk/internal/migration"
	"github.com/smallbiznis/coursedesk/internal/observability"
	"github.com/smallbiznis/coursedesk/internal/providers/pdf"
	"github.com/smallbiznis/coursedesk/internal/ratelimit"
	"github.com/smallbiznis/coursedesk/internal/reporting"
	"github.com/smallbiznis/coursedesk/internal/server"
	"github.com/smallbiznis/coursedesk/internal/subscription"
	"github.com/smallbiznis/coursedesk/internal/user"
	"github.com/smallbiznis/coursedesk/internal/userstatus"
	"github.com/smallbiznis/coursedesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Collaborator directories
		user.Module,
		course.Module,

		// Ledger
		audit.Module,
		userstatus.Module,
		subscription.Module,
		bulkoperation.Module,
		reporting.Module,

		// HTTP surface
		authorization.Module,
		pdf.Module,
		ratelimit.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
