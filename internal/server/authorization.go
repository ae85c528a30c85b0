package server

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/coursedesk/internal/authorization"
	obscontext "github.com/smallbiznis/coursedesk/internal/observability/context"
)

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authzSvc == nil {
			c.Next()
			return
		}

		actor := obscontext.ActorFromContext(c.Request.Context())
		if actor.ID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if err := s.authzSvc.Authorize(c.Request.Context(), actor.ID, actor.Role, object, action); err != nil {
			if errors.Is(err, authorization.ErrForbidden) {
				AbortWithError(c, ErrForbidden)
				return
			}
			AbortWithError(c, err)
			return
		}

		c.Next()
	}
}
