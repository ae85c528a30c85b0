// Package domain holds the read-only projections over the subscription ledger.
package domain

import (
	"context"
	"errors"
	"time"

	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	"github.com/smallbiznis/coursedesk/pkg/db/pagination"
)

type OverdueItem struct {
	subscriptiondomain.Subscription
	OverdueDays int `json:"overdue_days"`
}

type ActiveItem struct {
	subscriptiondomain.Subscription
	DaysRemaining int `json:"days_remaining"`
}

type OverdueResponse struct {
	Items    []OverdueItem       `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type ActiveResponse struct {
	Items    []ActiveItem        `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// StatsWindow bounds PaymentStats by created_at; nil bounds are open.
type StatsWindow struct {
	From *time.Time `form:"from"`
	To   *time.Time `form:"to"`
}

type Breakdown struct {
	Count         int64 `json:"count"`
	TotalAmount   int64 `json:"total_amount"`
	PaidAmount    int64 `json:"paid_amount"`
	PendingAmount int64 `json:"pending_amount"`
}

type PaymentStats struct {
	From     *time.Time           `json:"from,omitempty"`
	To       *time.Time           `json:"to,omitempty"`
	Totals   Breakdown            `json:"totals"`
	ByType   map[string]Breakdown `json:"by_type"`
	ByStatus map[string]Breakdown `json:"by_status"`
}

type Service interface {
	OverdueSubscriptions(ctx context.Context, page pagination.Page) (OverdueResponse, error)
	ActiveSubscriptions(ctx context.Context, page pagination.Page) (ActiveResponse, error)
	PaymentStats(ctx context.Context, window StatsWindow) (PaymentStats, error)
}

var ErrInvalidWindow = errors.New("invalid_window")
