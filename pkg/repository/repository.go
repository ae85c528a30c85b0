package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coursedesk/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a thin gorm store for tables owned by collaborators.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	FindByID(ctx context.Context, id snowflake.ID) (*T, error)
	Create(ctx context.Context, resource *T) error
	UpdateColumns(ctx context.Context, id snowflake.ID, columns map[string]any) (int64, error)
}
