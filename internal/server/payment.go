package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/coursedesk/internal/providers/pdf"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
)

type addPaymentRequest struct {
	Amount        int64   `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
	TransactionID *string `json:"transaction_id"`
	Notes         *string `json:"notes"`
	PaymentDate   string  `json:"payment_date"`
}

type editPaymentRequest struct {
	Amount        *int64  `json:"amount"`
	PaymentMethod *string `json:"payment_method"`
	TransactionID *string `json:"transaction_id"`
	Notes         *string `json:"notes"`
	PaymentDate   string  `json:"payment_date"`
}

func (s *Server) AddPayment(c *gin.Context) {
	var req addPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	paymentDate, err := parseOptionalTime(req.PaymentDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("payment_date", "invalid_payment_date", "invalid payment_date"))
		return
	}

	sub, err := s.subscriptionSvc.AddPayment(c.Request.Context(), c.Param("id"), subscriptiondomain.AddPaymentRequest{
		Amount:        req.Amount,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
		PaymentDate:   paymentDate,
	}, actorID(c))
	s.respondMutation(c, http.StatusCreated, sub, err)
}

func (s *Server) ListPaymentHistory(c *gin.Context) {
	history, err := s.subscriptionSvc.ListPaymentHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dataResponse{Data: history})
}

func (s *Server) EditPaymentEntry(c *gin.Context) {
	var req editPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	paymentDate, err := parseOptionalTime(req.PaymentDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("payment_date", "invalid_payment_date", "invalid payment_date"))
		return
	}

	sub, err := s.subscriptionSvc.EditPaymentEntry(c.Request.Context(), c.Param("id"), c.Param("entryId"), subscriptiondomain.EditPaymentRequest{
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
		PaymentDate:   paymentDate,
	}, actorID(c))
	s.respondMutation(c, http.StatusOK, sub, err)
}

func (s *Server) DeletePaymentEntry(c *gin.Context) {
	sub, err := s.subscriptionSvc.DeletePaymentEntry(c.Request.Context(), c.Param("id"), c.Param("entryId"), actorID(c))
	s.respondMutation(c, http.StatusOK, sub, err)
}

func (s *Server) DownloadStatement(c *gin.Context) {
	sub, err := s.subscriptionSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.pdfProvider.GenerateStatement(c.Request.Context(), pdf.NewStatementData(sub, s.clock.Now()))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%s.pdf"`, sub.ID.String()))
	c.Data(http.StatusOK, "application/pdf", body)
}
