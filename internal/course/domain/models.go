// Package domain is the read-only view of the catalog's courses table.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Course struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Name       string       `gorm:"type:text;not null" json:"name"`
	ClassLevel *string      `gorm:"type:text" json:"class_level,omitempty"`
	Subject    *string      `gorm:"type:text" json:"subject,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (Course) TableName() string { return "courses" }

type Directory interface {
	GetCourse(ctx context.Context, id snowflake.ID) (Course, error)
}

var ErrCourseNotFound = errors.New("course_not_found")
