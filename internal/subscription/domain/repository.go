package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Window is a half-open [From, To) range over created_at; zero bounds are unbounded.
type Window struct {
	From time.Time
	To   time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Save(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindOpenForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID, subscriptionType SubscriptionType, now time.Time) (*Subscription, error)
	ListByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Subscription, error)
	ListOverdue(ctx context.Context, db *gorm.DB, now time.Time, offset, limit int) ([]Subscription, int64, error)
	ListActive(ctx context.Context, db *gorm.DB, now time.Time, offset, limit int) ([]Subscription, int64, error)
	ListCreatedIn(ctx context.Context, db *gorm.DB, window Window) ([]Subscription, error)
}
