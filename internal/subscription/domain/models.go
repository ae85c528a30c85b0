// Package domain contains the subscription ledger record, its payment history and the
// pure reconciliation rules that derive the cached payment state.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionType selects the default validity window of a subscription.
type SubscriptionType string

const (
	SubscriptionTypeMonthly   SubscriptionType = "monthly"
	SubscriptionTypeSixMonths SubscriptionType = "6-months"
	SubscriptionTypeYearly    SubscriptionType = "yearly"
)

// PaymentStatus is the cached, derived payment state of a subscription.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusOverdue PaymentStatus = "overdue"
)

// PaymentMethod records how a staff member says a payment was made.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodBankTransfer PaymentMethod = "bank-transfer"
	PaymentMethodCheque       PaymentMethod = "cheque"
	PaymentMethodOther        PaymentMethod = "other"
)

// PendingSource tells whether PendingAmount was derived from the ledger or typed in by an administrator.
type PendingSource string

const (
	PendingSourceLedger         PendingSource = "ledger"
	PendingSourceManualOverride PendingSource = "manual_override"
)

// LedgerNoteKind classifies notes appended to a subscription's ledger.
type LedgerNoteKind string

const (
	LedgerNotePaymentDeleted LedgerNoteKind = "payment_deleted"
	LedgerNoteManualOverride LedgerNoteKind = "manual_override"
	LedgerNoteRenewed        LedgerNoteKind = "renewed"
)

// PaymentEntry is one administrator-recorded payment. Its ID survives edits.
type PaymentEntry struct {
	ID            snowflake.ID  `json:"id"`
	Amount        int64         `json:"amount"`
	PaymentDate   time.Time     `json:"payment_date"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	TransactionID *string       `json:"transaction_id,omitempty"`
	RecordedBy    string        `json:"recorded_by"`
	Notes         *string       `json:"notes,omitempty"`
	UpdatedBy     *string       `json:"updated_by,omitempty"`
	UpdatedAt     *time.Time    `json:"updated_at,omitempty"`
}

// LedgerNote is a human-readable, append-only remark kept on the record.
type LedgerNote struct {
	At      time.Time      `json:"at"`
	Actor   string         `json:"actor"`
	Kind    LedgerNoteKind `json:"kind"`
	Message string         `json:"message"`
}

// Subscription is the ledger record of one billing period for one student.
type Subscription struct {
	ID               snowflake.ID                      `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID                      `gorm:"not null;index" json:"user_id"`
	SubscriptionType SubscriptionType                  `gorm:"type:text;not null;index" json:"subscription_type"`
	Amount           int64                             `gorm:"not null" json:"amount"`
	PendingAmount    int64                             `gorm:"not null" json:"pending_amount"`
	PaymentStatus    PaymentStatus                     `gorm:"type:text;not null;index" json:"payment_status"`
	PendingSource    PendingSource                     `gorm:"type:text;not null;default:ledger" json:"pending_source"`
	StartDate        time.Time                         `gorm:"not null" json:"start_date"`
	EndDate          time.Time                         `gorm:"not null;index" json:"end_date"`
	PaymentHistory   datatypes.JSONSlice[PaymentEntry] `gorm:"not null" json:"payment_history"`
	LastPaymentDate  *time.Time                        `json:"last_payment_date,omitempty"`
	CourseID         *snowflake.ID                     `json:"course_id,omitempty"`
	CourseName       *string                           `gorm:"type:text" json:"course_name,omitempty"`
	ClassLevel       *string                           `gorm:"type:text" json:"class_level,omitempty"`
	Subject          *string                           `gorm:"type:text" json:"subject,omitempty"`
	LedgerNotes      datatypes.JSONSlice[LedgerNote]   `gorm:"not null" json:"ledger_notes"`
	Metadata         datatypes.JSONMap                 `json:"metadata,omitempty"`
	CreatedBy        string                            `gorm:"type:text;not null" json:"created_by"`
	UpdatedBy        string                            `gorm:"type:text;not null" json:"updated_by"`
	CreatedAt        time.Time                         `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time                         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// FindEntry returns the index of the entry with the given id, or -1.
func (s *Subscription) FindEntry(entryID snowflake.ID) int {
	for i, entry := range s.PaymentHistory {
		if entry.ID == entryID {
			return i
		}
	}
	return -1
}

func ParseSubscriptionType(raw string) (SubscriptionType, bool) {
	switch SubscriptionType(raw) {
	case SubscriptionTypeMonthly, SubscriptionTypeSixMonths, SubscriptionTypeYearly:
		return SubscriptionType(raw), true
	default:
		return "", false
	}
}

func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch PaymentMethod(raw) {
	case PaymentMethodCash, PaymentMethodOnline, PaymentMethodBankTransfer, PaymentMethodCheque, PaymentMethodOther:
		return PaymentMethod(raw), true
	default:
		return "", false
	}
}

func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch PaymentStatus(raw) {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusOverdue:
		return PaymentStatus(raw), true
	default:
		return "", false
	}
}

// SubscriptionTypes lists every subscription type in display order.
func SubscriptionTypes() []SubscriptionType {
	return []SubscriptionType{SubscriptionTypeMonthly, SubscriptionTypeSixMonths, SubscriptionTypeYearly}
}

// PaymentStatuses lists every payment status in display order.
func PaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusOverdue}
}

// UnsettledStatuses are the statuses that still carry a balance.
func UnsettledStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusPending, PaymentStatusPartial, PaymentStatusOverdue}
}
