package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	"gorm.io/gorm"
)

// AddPayment implements domain.Service.
func (s *Service) AddPayment(ctx context.Context, id string, req subscriptiondomain.AddPaymentRequest, actor string) (subscriptiondomain.Subscription, error) {
	if req.Amount <= 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAmount
	}
	method, err := resolveMethod(s.policy.Get(), req.PaymentMethod)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	return s.mutate(ctx, "add_payment", id, actor, func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time, actor string) (change, error) {
		paidAt := now
		if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
			paidAt = req.PaymentDate.UTC()
		}

		entry := s.newEntry(req.Amount, method, req.TransactionID, req.Notes, paidAt, actor)
		previous := sub.PendingAmount
		sub.PaymentHistory = append(sub.PaymentHistory, entry)
		applyReconcile(sub, previous, now)

		return change{
			action:   "subscription.payment_added",
			metadata: paymentMetadata(entry, sub),
		}, nil
	})
}

// ListPaymentHistory implements domain.Service.
func (s *Service) ListPaymentHistory(ctx context.Context, id string) (subscriptiondomain.PaymentHistory, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return subscriptiondomain.PaymentHistory{}, err
	}

	entries := make([]subscriptiondomain.PaymentEntry, len(sub.PaymentHistory))
	copy(entries, sub.PaymentHistory)
	return subscriptiondomain.PaymentHistory{
		SubscriptionID: sub.ID.String(),
		Amount:         sub.Amount,
		TotalPaid:      subscriptiondomain.TotalPaid(entries),
		PendingAmount:  sub.PendingAmount,
		PaymentStatus:  sub.PaymentStatus,
		PendingSource:  sub.PendingSource,
		Entries:        entries,
	}, nil
}

// EditPaymentEntry implements domain.Service.
func (s *Service) EditPaymentEntry(ctx context.Context, id, entryID string, req subscriptiondomain.EditPaymentRequest, actor string) (subscriptiondomain.Subscription, error) {
	parsedEntryID, err := parseID(entryID, subscriptiondomain.ErrInvalidID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAmount
	}
	var method *subscriptiondomain.PaymentMethod
	if req.PaymentMethod != nil {
		parsed, ok := subscriptiondomain.ParsePaymentMethod(strings.ToLower(strings.TrimSpace(*req.PaymentMethod)))
		if !ok {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidPaymentMethod
		}
		method = &parsed
	}

	return s.mutate(ctx, "edit_payment", id, actor, func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time, actor string) (change, error) {
		idx := sub.FindEntry(parsedEntryID)
		if idx < 0 {
			return change{}, subscriptiondomain.ErrPaymentEntryNotFound
		}

		entry := sub.PaymentHistory[idx]
		before := entry.Amount
		if req.Amount != nil {
			entry.Amount = *req.Amount
		}
		if method != nil {
			entry.PaymentMethod = *method
		}
		if req.TransactionID != nil {
			entry.TransactionID = normalizeOptional(req.TransactionID)
		}
		if req.Notes != nil {
			entry.Notes = normalizeOptional(req.Notes)
		}
		if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
			entry.PaymentDate = req.PaymentDate.UTC()
		}
		editor := actor
		editedAt := now
		entry.UpdatedBy = &editor
		entry.UpdatedAt = &editedAt
		sub.PaymentHistory[idx] = entry

		applyReconcile(sub, sub.PendingAmount, now)

		metadata := paymentMetadata(entry, sub)
		metadata["previous_amount"] = before
		return change{action: "subscription.payment_edited", metadata: metadata}, nil
	})
}

// DeletePaymentEntry implements domain.Service.
func (s *Service) DeletePaymentEntry(ctx context.Context, id, entryID string, actor string) (subscriptiondomain.Subscription, error) {
	parsedEntryID, err := parseID(entryID, subscriptiondomain.ErrInvalidID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	return s.mutate(ctx, "delete_payment", id, actor, func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time, actor string) (change, error) {
		idx := sub.FindEntry(parsedEntryID)
		if idx < 0 {
			return change{}, subscriptiondomain.ErrPaymentEntryNotFound
		}

		removed := sub.PaymentHistory[idx]
		sub.PaymentHistory = slices.Delete(slices.Clone(sub.PaymentHistory), idx, idx+1)
		sub.LedgerNotes = append(sub.LedgerNotes, subscriptiondomain.LedgerNote{
			At:      now,
			Actor:   actor,
			Kind:    subscriptiondomain.LedgerNotePaymentDeleted,
			Message: fmt.Sprintf("removed payment of %d dated %s (entry %s)", removed.Amount, formatDate(removed.PaymentDate), removed.ID),
		})
		applyReconcile(sub, sub.PendingAmount, now)

		return change{
			action:   "subscription.payment_deleted",
			metadata: paymentMetadata(removed, sub),
		}, nil
	})
}

// MarkFullyPaid implements domain.Service. It appends at most one entry covering the shortfall.
func (s *Service) MarkFullyPaid(ctx context.Context, id string, req subscriptiondomain.MarkPaidRequest, actor string) (subscriptiondomain.Subscription, error) {
	method, err := resolveMethod(s.policy.Get(), req.PaymentMethod)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	return s.mutate(ctx, "mark_paid", id, actor, func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time, actor string) (change, error) {
		previous := sub.PendingAmount
		shortfall := sub.Amount - subscriptiondomain.TotalPaid(sub.PaymentHistory)

		metadata := map[string]any{"shortfall": max(shortfall, 0)}
		if shortfall > 0 {
			entry := s.newEntry(shortfall, method, req.TransactionID, req.Notes, now, actor)
			sub.PaymentHistory = append(sub.PaymentHistory, entry)
			metadata = paymentMetadata(entry, sub)
			metadata["shortfall"] = shortfall
		}
		applyReconcile(sub, previous, now)
		metadata["pending_amount"] = sub.PendingAmount

		return change{action: "subscription.marked_paid", metadata: metadata}, nil
	})
}

// SetPendingAmountOverride implements domain.Service. The stored pending amount is taken as given
// and the record is tagged so later ledger mutations know to recompute it.
func (s *Service) SetPendingAmountOverride(ctx context.Context, id string, pendingAmount int64, actor string) (subscriptiondomain.Subscription, error) {
	if pendingAmount < 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidPendingAmount
	}

	return s.mutate(ctx, "set_pending_amount", id, actor, func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time, actor string) (change, error) {
		if pendingAmount > sub.Amount {
			return change{}, subscriptiondomain.ErrInvalidPendingAmount
		}

		previous := sub.PendingAmount
		ledgerPending := max(sub.Amount-subscriptiondomain.TotalPaid(sub.PaymentHistory), 0)

		sub.PendingAmount = pendingAmount
		sub.PaymentStatus = subscriptiondomain.OverrideStatus(sub.Amount, pendingAmount, sub.EndDate, now)
		sub.PendingSource = subscriptiondomain.PendingSourceManualOverride
		if previous > 0 && pendingAmount == 0 {
			settled := now
			sub.LastPaymentDate = &settled
		}
		sub.LedgerNotes = append(sub.LedgerNotes, subscriptiondomain.LedgerNote{
			At:      now,
			Actor:   actor,
			Kind:    subscriptiondomain.LedgerNoteManualOverride,
			Message: fmt.Sprintf("pending amount set to %d by override (ledger shows %d)", pendingAmount, ledgerPending),
		})

		return change{
			action: "subscription.pending_amount_overridden",
			metadata: map[string]any{
				"authoritative_override": true,
				"previous_pending":       previous,
				"pending_amount":         pendingAmount,
				"ledger_pending":         ledgerPending,
				"payment_status":         string(sub.PaymentStatus),
			},
		}, nil
	})
}

func paymentMetadata(entry subscriptiondomain.PaymentEntry, sub *subscriptiondomain.Subscription) map[string]any {
	metadata := map[string]any{
		"entry_id":       entry.ID.String(),
		"amount":         entry.Amount,
		"payment_method": string(entry.PaymentMethod),
		"payment_date":   formatDate(entry.PaymentDate),
		"pending_amount": sub.PendingAmount,
		"payment_status": string(sub.PaymentStatus),
	}
	if entry.TransactionID != nil {
		metadata["transaction_id"] = *entry.TransactionID
	}
	return metadata
}
