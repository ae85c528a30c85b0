package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	"go.uber.org/zap"
)

const warningPropagationFailed = "subscription_status_propagation_failed"

type dataResponse struct {
	Data     any      `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
}

type createSubscriptionRequest struct {
	UserID           string         `json:"user_id"`
	SubscriptionType string         `json:"subscription_type"`
	Amount           int64          `json:"amount"`
	StartDate        string         `json:"start_date"`
	EndDate          string         `json:"end_date"`
	PaymentStatus    string         `json:"payment_status"`
	PaymentMethod    string         `json:"payment_method"`
	CourseID         *string        `json:"course_id"`
	ClassLevel       *string        `json:"class_level"`
	Subject          *string        `json:"subject"`
	Metadata         map[string]any `json:"metadata"`
}

type updateSubscriptionRequest struct {
	Amount     *int64  `json:"amount"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	CourseID   *string `json:"course_id"`
	ClassLevel *string `json:"class_level"`
	Subject    *string `json:"subject"`
}

type markPaidRequest struct {
	PaymentMethod string  `json:"payment_method"`
	TransactionID *string `json:"transaction_id"`
	Notes         *string `json:"notes"`
}

type pendingAmountRequest struct {
	PendingAmount *int64 `json:"pending_amount"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startDate, err := parseOptionalTime(req.StartDate, false)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidStartDate)
		return
	}
	endDate, err := parseOptionalTime(req.EndDate, false)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidEndDate)
		return
	}

	sub, err := s.subscriptionSvc.CreateOrRenew(c.Request.Context(), subscriptiondomain.CreateOrRenewRequest{
		UserID:           strings.TrimSpace(req.UserID),
		SubscriptionType: strings.TrimSpace(req.SubscriptionType),
		Amount:           req.Amount,
		StartDate:        startDate,
		EndDate:          endDate,
		InitialStatus:    strings.TrimSpace(req.PaymentStatus),
		PaymentMethod:    strings.TrimSpace(req.PaymentMethod),
		CourseID:         req.CourseID,
		ClassLevel:       req.ClassLevel,
		Subject:          req.Subject,
		Metadata:         req.Metadata,
	}, actorID(c))
	s.respondMutation(c, http.StatusCreated, sub, err)
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		AbortWithError(c, newValidationError("user_id", "required", "user_id is required"))
		return
	}

	subs, err := s.subscriptionSvc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dataResponse{Data: subs})
}

func (s *Server) GetSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dataResponse{Data: sub})
}

func (s *Server) UpdateSubscription(c *gin.Context) {
	var req updateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startDate, err := parseOptionalTime(req.StartDate, false)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidStartDate)
		return
	}
	endDate, err := parseOptionalTime(req.EndDate, false)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidEndDate)
		return
	}

	sub, err := s.subscriptionSvc.Update(c.Request.Context(), c.Param("id"), subscriptiondomain.UpdateRequest{
		Amount:     req.Amount,
		StartDate:  startDate,
		EndDate:    endDate,
		CourseID:   req.CourseID,
		ClassLevel: req.ClassLevel,
		Subject:    req.Subject,
	}, actorID(c))
	s.respondMutation(c, http.StatusOK, sub, err)
}

func (s *Server) DeleteSubscription(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	err := s.subscriptionSvc.Delete(c.Request.Context(), id, actorID(c))
	s.respondMutation(c, http.StatusOK, gin.H{"id": id, "deleted": true}, err)
}

func (s *Server) MarkSubscriptionPaid(c *gin.Context) {
	var req markPaidRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sub, err := s.subscriptionSvc.MarkFullyPaid(c.Request.Context(), c.Param("id"), subscriptiondomain.MarkPaidRequest{
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
	}, actorID(c))
	s.respondMutation(c, http.StatusOK, sub, err)
}

func (s *Server) SetPendingAmount(c *gin.Context) {
	var req pendingAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.PendingAmount == nil {
		AbortWithError(c, newValidationError("pending_amount", "required", "pending_amount is required"))
		return
	}

	sub, err := s.subscriptionSvc.SetPendingAmountOverride(c.Request.Context(), c.Param("id"), *req.PendingAmount, actorID(c))
	s.respondMutation(c, http.StatusOK, sub, err)
}

// respondMutation treats a failed status propagation as a warning: the ledger change already committed.
func (s *Server) respondMutation(c *gin.Context, status int, data any, err error) {
	if err == nil {
		c.JSON(status, dataResponse{Data: data})
		return
	}

	var propErr *subscriptiondomain.PropagationError
	if !errors.As(err, &propErr) {
		AbortWithError(c, err)
		return
	}

	s.log.Warn("subscription status propagation failed",
		zap.String("user_id", propErr.UserID.String()),
		zap.String("route", c.FullPath()),
		zap.Error(propErr.Err),
	)
	c.JSON(status, dataResponse{Data: data, Warnings: []string{warningPropagationFailed}})
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, out any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
