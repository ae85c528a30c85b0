package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coursedesk/internal/clock"
	"github.com/smallbiznis/coursedesk/internal/observability/logger"
	"github.com/smallbiznis/coursedesk/internal/observability/metrics"
	"github.com/smallbiznis/coursedesk/internal/observability/tracing"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	userdomain "github.com/smallbiznis/coursedesk/internal/user/domain"
	userstatusdomain "github.com/smallbiznis/coursedesk/internal/userstatus/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	Users   userdomain.Directory
	Metrics *metrics.Metrics `optional:"true"`
}

// Propagator writes the aggregate subscription status onto the user record.
type Propagator struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    subscriptiondomain.Repository
	users   userdomain.Directory
	metrics *metrics.Metrics
}

func NewPropagator(p Params) *Propagator {
	return &Propagator{
		db:      p.DB,
		log:     p.Log.Named("userstatus.propagator"),
		clock:   p.Clock,
		repo:    p.Repo,
		users:   p.Users,
		metrics: p.Metrics,
	}
}

// Propagate implements domain.Service.
func (p *Propagator) Propagate(ctx context.Context, userID string) (userstatusdomain.Result, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(userID))
	if err != nil || id == 0 {
		return userstatusdomain.Result{}, userstatusdomain.ErrInvalidUser
	}
	return p.recompute(ctx, id)
}

// SubscriptionChanged implements subscription domain.Observer.
func (p *Propagator) SubscriptionChanged(ctx context.Context, userID snowflake.ID) error {
	_, err := p.recompute(ctx, userID)
	return err
}

func (p *Propagator) recompute(ctx context.Context, userID snowflake.ID) (result userstatusdomain.Result, err error) {
	ctx, span := tracing.Start(ctx, "coursedesk/userstatus", "userstatus.propagate",
		attribute.String("user.id", userID.String()),
	)
	defer func() { tracing.End(span, err) }()
	defer func() {
		outcome := metrics.OutcomeSuccess
		switch {
		case errors.Is(err, userstatusdomain.ErrUserNotFound):
			outcome = metrics.OutcomeNotFound
		case err != nil:
			outcome = metrics.OutcomeFailure
		}
		p.metrics.RecordPropagation(ctx, outcome)
	}()

	subs, err := p.repo.ListByUserID(ctx, p.db, userID)
	if err != nil {
		return userstatusdomain.Result{}, fmt.Errorf("list subscriptions: %w", err)
	}

	status := subscriptiondomain.Aggregate(subs, p.clock.Now())
	if err := p.users.SetAggregateStatus(ctx, userID, string(status)); err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return userstatusdomain.Result{}, userstatusdomain.ErrUserNotFound
		}
		return userstatusdomain.Result{}, err
	}

	logger.WithContext(ctx, p.log).Info("aggregate status propagated",
		zap.String("user_id", userID.String()),
		zap.String("status", string(status)),
		zap.Int("subscriptions", len(subs)),
	)
	return userstatusdomain.Result{
		UserID:            userID.String(),
		Status:            status,
		SubscriptionCount: len(subs),
	}, nil
}
