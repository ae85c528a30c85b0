package server

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/coursedesk/internal/observability/context"
	userdomain "github.com/smallbiznis/coursedesk/internal/user/domain"
)

const (
	HeaderActorID     = "X-Actor-ID"
	contextActorIDKey = "actor_id"
)

// ActorRequired resolves the X-Actor-ID header set by the gateway against the user directory.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.users.GetUser(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, userdomain.ErrUserNotFound) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), obscontext.Actor{
			ID:   user.ID.String(),
			Role: string(user.Role),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextActorIDKey, user.ID.String())
		c.Next()
	}
}

func actorID(c *gin.Context) string {
	return obscontext.ActorFromContext(c.Request.Context()).ID
}
