package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/coursedesk/internal/user/domain"
	"github.com/smallbiznis/coursedesk/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Directory struct {
	log   *zap.Logger
	users repository.Repository[userdomain.User]
}

func NewDirectory(p Params) userdomain.Directory {
	return &Directory{
		log:   p.Log.Named("user.directory"),
		users: repository.ProvideStore[userdomain.User](p.DB),
	}
}

func (d *Directory) GetUser(ctx context.Context, id snowflake.ID) (userdomain.User, error) {
	user, err := d.users.FindByID(ctx, id)
	if err != nil {
		return userdomain.User{}, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return userdomain.User{}, userdomain.ErrUserNotFound
	}
	return *user, nil
}

func (d *Directory) SetAggregateStatus(ctx context.Context, id snowflake.ID, status string) error {
	rows, err := d.users.UpdateColumns(ctx, id, map[string]any{"subscription_status": status})
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	if rows == 0 {
		return userdomain.ErrUserNotFound
	}
	d.log.Debug("aggregate status written",
		zap.String("user_id", id.String()),
		zap.String("status", status),
	)
	return nil
}
