package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/coursedesk/internal/clock"
	"github.com/smallbiznis/coursedesk/internal/config"
	reportingdomain "github.com/smallbiznis/coursedesk/internal/reporting/domain"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	"github.com/smallbiznis/coursedesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   subscriptiondomain.Repository
	Policy *config.LedgerPolicyHolder
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	repo   subscriptiondomain.Repository
	policy *config.LedgerPolicyHolder
}

func NewService(p Params) reportingdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("reporting.service"),
		clock:  p.Clock,
		repo:   p.Repo,
		policy: p.Policy,
	}
}

// OverdueSubscriptions lists unsettled subscriptions past their end date, oldest end date first.
func (s *Service) OverdueSubscriptions(ctx context.Context, page pagination.Page) (reportingdomain.OverdueResponse, error) {
	page = s.normalize(page)
	now := s.clock.Now()

	subs, total, err := s.repo.ListOverdue(ctx, s.db, now, page.Offset(), page.Limit)
	if err != nil {
		return reportingdomain.OverdueResponse{}, fmt.Errorf("list overdue: %w", err)
	}

	items := make([]reportingdomain.OverdueItem, 0, len(subs))
	for _, sub := range subs {
		items = append(items, reportingdomain.OverdueItem{
			Subscription: sub,
			OverdueDays:  subscriptiondomain.OverdueDays(sub, now),
		})
	}
	return reportingdomain.OverdueResponse{Items: items, PageInfo: page.Info(total)}, nil
}

// ActiveSubscriptions lists paid, unexpired subscriptions, latest end date first.
func (s *Service) ActiveSubscriptions(ctx context.Context, page pagination.Page) (reportingdomain.ActiveResponse, error) {
	page = s.normalize(page)
	now := s.clock.Now()

	subs, total, err := s.repo.ListActive(ctx, s.db, now, page.Offset(), page.Limit)
	if err != nil {
		return reportingdomain.ActiveResponse{}, fmt.Errorf("list active: %w", err)
	}

	items := make([]reportingdomain.ActiveItem, 0, len(subs))
	for _, sub := range subs {
		items = append(items, reportingdomain.ActiveItem{
			Subscription:  sub,
			DaysRemaining: subscriptiondomain.DaysRemaining(sub, now),
		})
	}
	return reportingdomain.ActiveResponse{Items: items, PageInfo: page.Info(total)}, nil
}

// PaymentStats aggregates subscriptions created in the window. Every type and status key is present.
func (s *Service) PaymentStats(ctx context.Context, window reportingdomain.StatsWindow) (reportingdomain.PaymentStats, error) {
	if window.From != nil && window.To != nil && !window.To.After(*window.From) {
		return reportingdomain.PaymentStats{}, reportingdomain.ErrInvalidWindow
	}

	var bounds subscriptiondomain.Window
	if window.From != nil {
		bounds.From = window.From.UTC()
	}
	if window.To != nil {
		bounds.To = window.To.UTC()
	}

	subs, err := s.repo.ListCreatedIn(ctx, s.db, bounds)
	if err != nil {
		return reportingdomain.PaymentStats{}, fmt.Errorf("list subscriptions in window: %w", err)
	}

	stats := reportingdomain.PaymentStats{
		From:     window.From,
		To:       window.To,
		ByType:   make(map[string]reportingdomain.Breakdown),
		ByStatus: make(map[string]reportingdomain.Breakdown),
	}
	for _, kind := range subscriptiondomain.SubscriptionTypes() {
		stats.ByType[string(kind)] = reportingdomain.Breakdown{}
	}
	for _, status := range subscriptiondomain.PaymentStatuses() {
		stats.ByStatus[string(status)] = reportingdomain.Breakdown{}
	}

	for _, sub := range subs {
		stats.Totals = accumulate(stats.Totals, sub)
		stats.ByType[string(sub.SubscriptionType)] = accumulate(stats.ByType[string(sub.SubscriptionType)], sub)
		stats.ByStatus[string(sub.PaymentStatus)] = accumulate(stats.ByStatus[string(sub.PaymentStatus)], sub)
	}

	s.log.Debug("payment stats computed", zap.Int("subscriptions", len(subs)))
	return stats, nil
}

func (s *Service) normalize(page pagination.Page) pagination.Page {
	limits := s.policy.Get().Reporting
	return page.Normalize(limits.DefaultLimit, limits.MaxLimit)
}

// accumulate counts paid as amount minus pending so manual overrides are reported as stored.
func accumulate(b reportingdomain.Breakdown, sub subscriptiondomain.Subscription) reportingdomain.Breakdown {
	b.Count++
	b.TotalAmount += sub.Amount
	b.PendingAmount += sub.PendingAmount
	b.PaidAmount += sub.Amount - sub.PendingAmount
	return b
}
