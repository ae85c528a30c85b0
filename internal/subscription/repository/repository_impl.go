package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

// Save writes every column, including zero values such as a cleared pending amount.
func (r *repo) Save(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).
		Model(subscription).
		Select("*").
		Omit("id", "created_at", "created_by").
		Updates(subscription).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&subscriptiondomain.Subscription{}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate takes a row lock where the dialect supports it; sqlite ignores the clause.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repo) FindOpenForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID, subscriptionType subscriptiondomain.SubscriptionType, now time.Time) (*subscriptiondomain.Subscription, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND subscription_type = ?", userID, subscriptionType).
		Where("(end_date >= ? OR pending_amount > 0)", now).
		Order("end_date DESC").
		Order("id DESC"))
}

func (r *repo) ListByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) ListOverdue(ctx context.Context, db *gorm.DB, now time.Time, offset, limit int) ([]subscriptiondomain.Subscription, int64, error) {
	scope := func(tx *gorm.DB) *gorm.DB {
		return tx.Where("payment_status IN ? AND end_date < ?", subscriptiondomain.UnsettledStatuses(), now)
	}
	return page(ctx, db, scope, "end_date ASC", offset, limit)
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, now time.Time, offset, limit int) ([]subscriptiondomain.Subscription, int64, error) {
	scope := func(tx *gorm.DB) *gorm.DB {
		return tx.Where("payment_status = ? AND end_date >= ?", subscriptiondomain.PaymentStatusPaid, now)
	}
	return page(ctx, db, scope, "end_date DESC", offset, limit)
}

func (r *repo) ListCreatedIn(ctx context.Context, db *gorm.DB, window subscriptiondomain.Window) ([]subscriptiondomain.Subscription, error) {
	stmt := db.WithContext(ctx).Model(&subscriptiondomain.Subscription{})
	if !window.From.IsZero() {
		stmt = stmt.Where("created_at >= ?", window.From)
	}
	if !window.To.IsZero() {
		stmt = stmt.Where("created_at < ?", window.To)
	}

	var subscriptions []subscriptiondomain.Subscription
	if err := stmt.Order("created_at ASC").Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func first(stmt *gorm.DB) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := stmt.Take(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func page(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, order string, offset, limit int) ([]subscriptiondomain.Subscription, int64, error) {
	var total int64
	if err := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Scopes(scope).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var subscriptions []subscriptiondomain.Subscription
	if err := db.WithContext(ctx).
		Scopes(scope).
		Order(order).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&subscriptions).Error; err != nil {
		return nil, 0, err
	}
	return subscriptions, total, nil
}
