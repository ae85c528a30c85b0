package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateOrRenewRequest struct {
	UserID           string         `json:"user_id"`
	SubscriptionType string         `json:"subscription_type"`
	Amount           int64          `json:"amount"`
	StartDate        *time.Time     `json:"start_date"`
	EndDate          *time.Time     `json:"end_date,omitempty"`
	InitialStatus    string         `json:"payment_status,omitempty"`
	PaymentMethod    string         `json:"payment_method,omitempty"`
	CourseID         *string        `json:"course_id,omitempty"`
	ClassLevel       *string        `json:"class_level,omitempty"`
	Subject          *string        `json:"subject,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type UpdateRequest struct {
	Amount     *int64     `json:"amount,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	CourseID   *string    `json:"course_id,omitempty"`
	ClassLevel *string    `json:"class_level,omitempty"`
	Subject    *string    `json:"subject,omitempty"`
}

type AddPaymentRequest struct {
	Amount        int64      `json:"amount"`
	PaymentMethod string     `json:"payment_method"`
	TransactionID *string    `json:"transaction_id,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
}

// EditPaymentRequest patches an entry; nil fields are left untouched.
type EditPaymentRequest struct {
	Amount        *int64     `json:"amount,omitempty"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	TransactionID *string    `json:"transaction_id,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
}

type MarkPaidRequest struct {
	PaymentMethod string  `json:"payment_method"`
	TransactionID *string `json:"transaction_id,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

type PaymentHistory struct {
	SubscriptionID string         `json:"subscription_id"`
	Amount         int64          `json:"amount"`
	TotalPaid      int64          `json:"total_paid"`
	PendingAmount  int64          `json:"pending_amount"`
	PaymentStatus  PaymentStatus  `json:"payment_status"`
	PendingSource  PendingSource  `json:"pending_source"`
	Entries        []PaymentEntry `json:"entries"`
}

type Service interface {
	CreateOrRenew(ctx context.Context, req CreateOrRenewRequest, actor string) (Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]Subscription, error)
	Update(ctx context.Context, id string, req UpdateRequest, actor string) (Subscription, error)
	Delete(ctx context.Context, id string, actor string) error

	AddPayment(ctx context.Context, id string, req AddPaymentRequest, actor string) (Subscription, error)
	ListPaymentHistory(ctx context.Context, id string) (PaymentHistory, error)
	EditPaymentEntry(ctx context.Context, id, entryID string, req EditPaymentRequest, actor string) (Subscription, error)
	DeletePaymentEntry(ctx context.Context, id, entryID string, actor string) (Subscription, error)
	MarkFullyPaid(ctx context.Context, id string, req MarkPaidRequest, actor string) (Subscription, error)
	SetPendingAmountOverride(ctx context.Context, id string, pendingAmount int64, actor string) (Subscription, error)
	Reconcile(ctx context.Context, id string, actor string) (Subscription, error)
}

// Observer is notified after a mutation touching userID has committed.
type Observer interface {
	SubscriptionChanged(ctx context.Context, userID snowflake.ID) error
}

// PropagationError reports that the ledger change committed but the aggregate
// status of the owning user could not be refreshed.
type PropagationError struct {
	UserID snowflake.ID
	Err    error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("status propagation for user %s failed: %v", e.UserID, e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }

var (
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidStartDate        = errors.New("invalid_start_date")
	ErrInvalidEndDate          = errors.New("invalid_end_date")
	ErrInvalidSubscriptionType = errors.New("invalid_subscription_type")
	ErrInvalidPaymentMethod    = errors.New("invalid_payment_method")
	ErrInvalidInitialStatus    = errors.New("invalid_initial_status")
	ErrInvalidPendingAmount    = errors.New("invalid_pending_amount")
	ErrInvalidID               = errors.New("invalid_id")
	ErrInvalidUser             = errors.New("invalid_user")
	ErrInvalidActor            = errors.New("invalid_actor")
	ErrInvalidCourse           = errors.New("invalid_course")

	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrPaymentEntryNotFound = errors.New("payment_entry_not_found")
	ErrUserNotFound         = errors.New("user_not_found")
	ErrCourseNotFound       = errors.New("course_not_found")
)
