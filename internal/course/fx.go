package course

import (
	"github.com/smallbiznis/coursedesk/internal/course/service"
	"go.uber.org/fx"
)

var Module = fx.Module("course.directory",
	fx.Provide(service.NewDirectory),
)
