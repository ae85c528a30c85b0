package domain

import "time"

// ReconcileInput carries everything the reconciler needs; it never reads the clock itself.
type ReconcileInput struct {
	Amount          int64
	History         []PaymentEntry
	EndDate         time.Time
	Now             time.Time
	PreviousPending int64
	LastPaymentDate *time.Time
}

type ReconcileResult struct {
	PendingAmount   int64
	PaymentStatus   PaymentStatus
	TotalPaid       int64
	LastPaymentDate *time.Time
}

// Reconcile derives pending amount, status and last payment date from the ledger.
func Reconcile(in ReconcileInput) ReconcileResult {
	totalPaid := TotalPaid(in.History)
	pending := in.Amount - totalPaid
	if pending < 0 {
		pending = 0
	}

	result := ReconcileResult{
		PendingAmount:   pending,
		PaymentStatus:   statusFor(pending, totalPaid, in.EndDate, in.Now),
		TotalPaid:       totalPaid,
		LastPaymentDate: copyTime(in.LastPaymentDate),
	}

	if in.PreviousPending > 0 && pending == 0 {
		settledAt := settlementDate(in.Amount, in.History, in.Now)
		result.LastPaymentDate = &settledAt
	}

	return result
}

// OverrideStatus is the status implied by an administrator-typed pending amount.
func OverrideStatus(amount, pending int64, endDate, now time.Time) PaymentStatus {
	switch {
	case pending == 0:
		return PaymentStatusPaid
	case pending == amount:
		return unpaidStatus(endDate, now)
	default:
		return PaymentStatusPartial
	}
}

func statusFor(pending, totalPaid int64, endDate, now time.Time) PaymentStatus {
	switch {
	case pending == 0:
		return PaymentStatusPaid
	case totalPaid > 0:
		return PaymentStatusPartial
	default:
		return unpaidStatus(endDate, now)
	}
}

func unpaidStatus(endDate, now time.Time) PaymentStatus {
	if now.After(endDate) {
		return PaymentStatusOverdue
	}
	return PaymentStatusPending
}

// settlementDate is the date of the entry whose running total first covers amount.
func settlementDate(amount int64, history []PaymentEntry, now time.Time) time.Time {
	var running int64
	for _, entry := range history {
		running += entry.Amount
		if running >= amount {
			return entry.PaymentDate
		}
	}
	return now
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
