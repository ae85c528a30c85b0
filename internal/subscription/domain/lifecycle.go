package domain

import (
	"math"
	"time"
)

// AggregateStatus is the per-user roll-up written to the user directory.
type AggregateStatus string

const (
	AggregateStatusActive    AggregateStatus = "active"
	AggregateStatusSuspended AggregateStatus = "suspended"
	AggregateStatusInactive  AggregateStatus = "inactive"
)

const day = 24 * time.Hour

// TotalPaid sums every entry in the history.
func TotalPaid(history []PaymentEntry) int64 {
	var total int64
	for _, entry := range history {
		total += entry.Amount
	}
	return total
}

// IsActive reports whether the subscription is paid and still within its term.
func IsActive(sub Subscription, now time.Time) bool {
	return sub.PaymentStatus == PaymentStatusPaid && !sub.EndDate.Before(now)
}

// IsLapsedUnpaid reports whether the term ended while a balance is still open.
func IsLapsedUnpaid(sub Subscription, now time.Time) bool {
	return isUnsettled(sub.PaymentStatus) && sub.EndDate.Before(now)
}

// IsOpen reports whether a renewal for the same user and type should reuse this record.
func IsOpen(sub Subscription, now time.Time) bool {
	return !sub.EndDate.Before(now) || sub.PendingAmount > 0
}

// DaysRemaining rounds up to whole days; it is zero once the term ended.
func DaysRemaining(sub Subscription, now time.Time) int {
	if !sub.EndDate.After(now) {
		return 0
	}
	return int(math.Ceil(float64(sub.EndDate.Sub(now)) / float64(day)))
}

// OverdueDays is the whole number of days since the term ended.
func OverdueDays(sub Subscription, now time.Time) int {
	if !now.After(sub.EndDate) {
		return 0
	}
	return int(now.Sub(sub.EndDate) / day)
}

// DefaultEndDate adds the configured number of months to start.
func DefaultEndDate(start time.Time, months int) time.Time {
	return start.AddDate(0, months, 0)
}

// Aggregate applies the active > suspended > inactive rule over a user's subscriptions.
func Aggregate(subs []Subscription, now time.Time) AggregateStatus {
	suspended := false
	for _, sub := range subs {
		if IsActive(sub, now) {
			return AggregateStatusActive
		}
		if IsLapsedUnpaid(sub, now) {
			suspended = true
		}
	}
	if suspended {
		return AggregateStatusSuspended
	}
	return AggregateStatusInactive
}

func isUnsettled(status PaymentStatus) bool {
	switch status {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusOverdue:
		return true
	}
	return false
}
