package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	bulkdomain "github.com/smallbiznis/coursedesk/internal/bulkoperation/domain"
)

// BulkUpdate always answers 200 once the request is structurally valid; item failures are in the body.
func (s *Server) BulkUpdate(c *gin.Context) {
	var req bulkdomain.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.bulkSvc.Apply(c.Request.Context(), req, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dataResponse{Data: result})
}
