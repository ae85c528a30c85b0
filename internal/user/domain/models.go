// Package domain describes the slice of the identity collaborator's users table the ledger reads and writes.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStaff   Role = "staff"
	RoleStudent Role = "student"
)

type User struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	Name               string       `gorm:"type:text;not null" json:"name"`
	Email              string       `gorm:"type:text;not null;uniqueIndex" json:"email"`
	Role               Role         `gorm:"type:text;not null" json:"role"`
	SubscriptionStatus string       `gorm:"type:text;not null;default:inactive" json:"subscription_status"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Directory is the user lookup the ledger depends on.
type Directory interface {
	GetUser(ctx context.Context, id snowflake.ID) (User, error)
	SetAggregateStatus(ctx context.Context, id snowflake.ID, status string) error
}

var ErrUserNotFound = errors.New("user_not_found")
