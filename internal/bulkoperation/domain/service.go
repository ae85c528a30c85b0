// Package domain describes administrator bulk corrections over many subscriptions.
package domain

import (
	"context"
	"encoding/json"
	"errors"
)

type Operation string

const (
	OperationMarkPaid         Operation = "mark_paid"
	OperationSetPendingAmount Operation = "set_pending_amount"
	OperationAddPayment       Operation = "add_payment"
	OperationUpdate           Operation = "update"
	OperationDelete           Operation = "delete"
)

func ParseOperation(raw string) (Operation, bool) {
	switch Operation(raw) {
	case OperationMarkPaid, OperationSetPendingAmount, OperationAddPayment, OperationUpdate, OperationDelete:
		return Operation(raw), true
	default:
		return "", false
	}
}

type BulkRequest struct {
	SubscriptionIDs []string        `json:"subscription_ids"`
	Operation       string          `json:"operation"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// SetPendingAmountPayload requires PendingAmount; a missing value is a malformed payload.
type SetPendingAmountPayload struct {
	PendingAmount *int64 `json:"pending_amount"`
}

type ItemError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type BulkResult struct {
	UpdatedCount int         `json:"updated_count"`
	FailedCount  int         `json:"failed_count"`
	Errors       []ItemError `json:"errors"`
}

// Service applies one operation to every id. Only structural problems abort the whole call;
// per-item failures are collected in BulkResult.Errors.
type Service interface {
	Apply(ctx context.Context, req BulkRequest, actor string) (BulkResult, error)
}

var (
	ErrEmptyIDs         = errors.New("empty_ids")
	ErrTooManyIDs       = errors.New("too_many_ids")
	ErrInvalidOperation = errors.New("invalid_operation")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidActor     = errors.New("invalid_actor")
)
