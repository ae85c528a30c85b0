package pdf

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "0.00", FormatMoney(0))
	assert.Equal(t, "12.05", FormatMoney(1205))
	assert.Equal(t, "-3.10", FormatMoney(-310))
}

func TestNewStatementData(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ref := "TX-99887766"
	course := "Algebra"
	sub := subscriptiondomain.Subscription{
		ID:               snowflake.ID(10),
		UserID:           snowflake.ID(7),
		SubscriptionType: subscriptiondomain.SubscriptionTypeMonthly,
		Amount:           100000,
		PendingAmount:    60000,
		PaymentStatus:    subscriptiondomain.PaymentStatusPartial,
		PendingSource:    subscriptiondomain.PendingSourceLedger,
		StartDate:        start,
		EndDate:          start.AddDate(0, 1, 0),
		CourseName:       &course,
		PaymentHistory: []subscriptiondomain.PaymentEntry{
			{ID: 1, Amount: 40000, PaymentDate: start, PaymentMethod: subscriptiondomain.PaymentMethodOnline, TransactionID: &ref},
		},
	}

	data := NewStatementData(sub, start)
	assert.Equal(t, "1000.00", data.Amount)
	assert.Equal(t, "400.00", data.TotalPaid)
	assert.Equal(t, "600.00", data.Pending)
	assert.Equal(t, "Algebra", data.CourseName)
	assert.Equal(t, "2026-01-01 to 2026-02-01", data.Period)
	require.Len(t, data.Entries, 1)
	assert.Equal(t, "****7766", data.Entries[0].Reference)
	assert.False(t, data.Override)
}

func TestGenerateStatement(t *testing.T) {
	data := StatementData{
		SubscriptionID: "10",
		UserID:         "7",
		Type:           "monthly",
		Status:         "paid",
		Amount:         "10.00",
		TotalPaid:      "10.00",
		Pending:        "0.00",
		Override:       true,
		Entries:        []StatementEntry{{Date: "2026-01-01", Method: "cash", Reference: "-", Amount: "10.00"}},
	}

	reader, err := NewProvider().GenerateStatement(context.Background(), data)
	require.NoError(t, err)

	raw, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	assert.Equal(t, "%PDF", string(raw[:4]))
}
