package userstatus

import (
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	userstatusdomain "github.com/smallbiznis/coursedesk/internal/userstatus/domain"
	"github.com/smallbiznis/coursedesk/internal/userstatus/service"
	"go.uber.org/fx"
)

var Module = fx.Module("userstatus.propagator",
	fx.Provide(service.NewPropagator),
	fx.Provide(func(p *service.Propagator) userstatusdomain.Service { return p }),
	fx.Provide(
		fx.Annotate(
			func(p *service.Propagator) subscriptiondomain.Observer { return p },
			fx.ResultTags(`group:"subscription.observers"`),
		),
	),
)
