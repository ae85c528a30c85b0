package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	reportingdomain "github.com/smallbiznis/coursedesk/internal/reporting/domain"
	"github.com/smallbiznis/coursedesk/pkg/db/pagination"
)

type statsQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

func (s *Server) ListOverdueSubscriptions(c *gin.Context) {
	var page pagination.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reportingSvc.OverdueSubscriptions(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) ListActiveSubscriptions(c *gin.Context) {
	var page pagination.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reportingSvc.ActiveSubscriptions(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) GetPaymentStats(c *gin.Context) {
	var query statsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	stats, err := s.reportingSvc.PaymentStats(c.Request.Context(), reportingdomain.StatsWindow{From: from, To: to})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dataResponse{Data: stats})
}
