package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) RecomputeUserStatus(c *gin.Context) {
	result, err := s.userStatusSvc.Propagate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dataResponse{Data: result})
}
