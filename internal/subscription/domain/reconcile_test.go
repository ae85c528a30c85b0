package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func entry(id int64, amount int64, at time.Time) PaymentEntry {
	return PaymentEntry{ID: snowflakeID(id), Amount: amount, PaymentDate: at, PaymentMethod: PaymentMethodCash, RecordedBy: "staff-1"}
}

func TestReconcile_StatusRules(t *testing.T) {
	future := baseNow.Add(48 * time.Hour)
	past := baseNow.Add(-48 * time.Hour)

	cases := []struct {
		name    string
		amount  int64
		history []PaymentEntry
		end     time.Time
		pending int64
		status  PaymentStatus
	}{
		{name: "no payments before end", amount: 1000, end: future, pending: 1000, status: PaymentStatusPending},
		{name: "no payments after end", amount: 1000, end: past, pending: 1000, status: PaymentStatusOverdue},
		{name: "partial before end", amount: 1000, history: []PaymentEntry{entry(1, 400, past)}, end: future, pending: 600, status: PaymentStatusPartial},
		{name: "partial after end stays partial", amount: 1000, history: []PaymentEntry{entry(1, 400, past)}, end: past, pending: 600, status: PaymentStatusPartial},
		{name: "exact payment", amount: 1000, history: []PaymentEntry{entry(1, 1000, past)}, end: past, pending: 0, status: PaymentStatusPaid},
		{name: "overpayment clamps", amount: 1000, history: []PaymentEntry{entry(1, 700, past), entry(2, 700, past)}, end: future, pending: 0, status: PaymentStatusPaid},
		{name: "end equal to now is pending", amount: 500, end: baseNow, pending: 500, status: PaymentStatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Reconcile(ReconcileInput{
				Amount:          tc.amount,
				History:         tc.history,
				EndDate:         tc.end,
				Now:             baseNow,
				PreviousPending: tc.amount,
			})
			assert.Equal(t, tc.pending, res.PendingAmount)
			assert.Equal(t, tc.status, res.PaymentStatus)
			assert.Equal(t, res.PaymentStatus == PaymentStatusPaid, res.PendingAmount == 0)
		})
	}
}

func TestReconcile_LastPaymentDateSetOnSettlement(t *testing.T) {
	first := baseNow.Add(-72 * time.Hour)
	second := baseNow.Add(-24 * time.Hour)
	history := []PaymentEntry{entry(1, 400, first), entry(2, 600, second)}

	res := Reconcile(ReconcileInput{
		Amount:          1000,
		History:         history,
		EndDate:         baseNow.Add(24 * time.Hour),
		Now:             baseNow,
		PreviousPending: 600,
	})

	require.NotNil(t, res.LastPaymentDate)
	assert.Equal(t, second, *res.LastPaymentDate)
	assert.Equal(t, int64(1000), res.TotalPaid)
}

func TestReconcile_LastPaymentDateUsesFirstCoveringEntry(t *testing.T) {
	history := []PaymentEntry{
		entry(1, 500, baseNow.Add(-96*time.Hour)),
		entry(2, 500, baseNow.Add(-48*time.Hour)),
		entry(3, 200, baseNow.Add(-24*time.Hour)),
	}

	res := Reconcile(ReconcileInput{Amount: 1000, History: history, EndDate: baseNow, Now: baseNow, PreviousPending: 1000})

	require.NotNil(t, res.LastPaymentDate)
	assert.Equal(t, history[1].PaymentDate, *res.LastPaymentDate)
}

func TestReconcile_LastPaymentDateRetainedWhenAlreadySettled(t *testing.T) {
	settled := baseNow.Add(-240 * time.Hour)
	history := []PaymentEntry{entry(1, 1000, baseNow.Add(-24*time.Hour))}

	res := Reconcile(ReconcileInput{
		Amount:          1000,
		History:         history,
		EndDate:         baseNow,
		Now:             baseNow,
		PreviousPending: 0,
		LastPaymentDate: &settled,
	})

	require.NotNil(t, res.LastPaymentDate)
	assert.Equal(t, settled, *res.LastPaymentDate)
}

func TestReconcile_LastPaymentDateRetainedOnReopen(t *testing.T) {
	settled := baseNow.Add(-24 * time.Hour)

	res := Reconcile(ReconcileInput{
		Amount:          1000,
		History:         []PaymentEntry{entry(1, 300, settled)},
		EndDate:         baseNow.Add(24 * time.Hour),
		Now:             baseNow,
		PreviousPending: 0,
		LastPaymentDate: &settled,
	})

	assert.Equal(t, PaymentStatusPartial, res.PaymentStatus)
	require.NotNil(t, res.LastPaymentDate)
	assert.Equal(t, settled, *res.LastPaymentDate)
}

func TestReconcile_Idempotent(t *testing.T) {
	in := ReconcileInput{
		Amount:          1000,
		History:         []PaymentEntry{entry(1, 250, baseNow), entry(2, 750, baseNow)},
		EndDate:         baseNow.Add(time.Hour),
		Now:             baseNow,
		PreviousPending: 1000,
	}
	first := Reconcile(in)

	in.PreviousPending = first.PendingAmount
	in.LastPaymentDate = first.LastPaymentDate
	second := Reconcile(in)

	assert.Equal(t, first, second)
}

func TestReconcile_DoesNotAliasInputLastPaymentDate(t *testing.T) {
	lpd := baseNow
	res := Reconcile(ReconcileInput{Amount: 100, EndDate: baseNow, Now: baseNow, PreviousPending: 100, LastPaymentDate: &lpd})

	require.NotNil(t, res.LastPaymentDate)
	lpd = lpd.Add(time.Hour)
	assert.Equal(t, baseNow, *res.LastPaymentDate)
}

func TestOverrideStatus(t *testing.T) {
	future := baseNow.Add(time.Hour)
	past := baseNow.Add(-time.Hour)

	assert.Equal(t, PaymentStatusPaid, OverrideStatus(1000, 0, future, baseNow))
	assert.Equal(t, PaymentStatusPending, OverrideStatus(1000, 1000, future, baseNow))
	assert.Equal(t, PaymentStatusOverdue, OverrideStatus(1000, 1000, past, baseNow))
	assert.Equal(t, PaymentStatusPartial, OverrideStatus(1000, 10, past, baseNow))
}
