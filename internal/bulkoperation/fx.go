package bulkoperation

import (
	"github.com/smallbiznis/coursedesk/internal/bulkoperation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("bulkoperation.service",
	fx.Provide(service.NewService),
)
