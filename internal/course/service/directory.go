package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/golang-lru/v2/expirable"
	coursedomain "github.com/smallbiznis/coursedesk/internal/course/domain"
	"github.com/smallbiznis/coursedesk/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 5 * time.Minute
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Directory reads courses through a small TTL cache; course names change rarely
// and are copied onto subscriptions at write time.
type Directory struct {
	log     *zap.Logger
	courses repository.Repository[coursedomain.Course]
	cache   *expirable.LRU[snowflake.ID, coursedomain.Course]
	group   singleflight.Group
}

func NewDirectory(p Params) coursedomain.Directory {
	return newDirectory(p, defaultCacheSize, defaultCacheTTL)
}

func newDirectory(p Params, size int, ttl time.Duration) *Directory {
	return &Directory{
		log:     p.Log.Named("course.directory"),
		courses: repository.ProvideStore[coursedomain.Course](p.DB),
		cache:   expirable.NewLRU[snowflake.ID, coursedomain.Course](size, nil, ttl),
	}
}

func (d *Directory) GetCourse(ctx context.Context, id snowflake.ID) (coursedomain.Course, error) {
	if course, ok := d.cache.Get(id); ok {
		return course, nil
	}

	v, err, _ := d.group.Do(id.String(), func() (interface{}, error) {
		course, err := d.courses.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load course: %w", err)
		}
		if course == nil {
			return nil, coursedomain.ErrCourseNotFound
		}
		d.cache.Add(id, *course)
		return *course, nil
	})
	if err != nil {
		return coursedomain.Course{}, err
	}
	return v.(coursedomain.Course), nil
}
