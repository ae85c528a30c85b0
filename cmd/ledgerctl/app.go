package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coursedesk/internal/audit"
	"github.com/smallbiznis/coursedesk/internal/clock"
	"github.com/smallbiznis/coursedesk/internal/config"
	"github.com/smallbiznis/coursedesk/internal/course"
	"github.com/smallbiznis/coursedesk/internal/lock"
	"github.com/smallbiznis/coursedesk/internal/observability"
	"github.com/smallbiznis/coursedesk/internal/reporting"
	"github.com/smallbiznis/coursedesk/internal/subscription"
	"github.com/smallbiznis/coursedesk/internal/user"
	"github.com/smallbiznis/coursedesk/internal/userstatus"
	"github.com/smallbiznis/coursedesk/pkg/db"
	"go.uber.org/fx"
)

const stopTimeout = 10 * time.Second

func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		db.Module,
	)
}

func ledger() fx.Option {
	return fx.Options(
		infrastructure(),
		fx.Provide(registerSnowflake),
		clock.Module,
		lock.Module,
		user.Module,
		course.Module,
		audit.Module,
		userstatus.Module,
		subscription.Module,
		reporting.Module,
	)
}

func registerSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

// withApp populates targets from the graph, starts it, runs fn and stops the graph again.
func withApp(ctx context.Context, opts fx.Option, fn func(context.Context) error, targets ...any) error {
	app := fx.New(
		fx.NopLogger,
		opts,
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, stopTimeout)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
