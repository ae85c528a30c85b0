package user

import (
	"github.com/smallbiznis/coursedesk/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.directory",
	fx.Provide(service.NewDirectory),
)
