// Package domain defines the per-user aggregate status recompute.
package domain

import (
	"context"
	"errors"

	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
)

type Result struct {
	UserID            string                             `json:"user_id"`
	Status            subscriptiondomain.AggregateStatus `json:"subscription_status"`
	SubscriptionCount int                                `json:"subscription_count"`
}

// Service recomputes a user's aggregate status from all of their subscriptions. It is idempotent.
type Service interface {
	Propagate(ctx context.Context, userID string) (Result, error)
}

var (
	ErrInvalidUser  = errors.New("invalid_user")
	ErrUserNotFound = errors.New("user_not_found")
)
