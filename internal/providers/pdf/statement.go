package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/coursedesk/internal/audit/masking"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
)

const dateLayout = "2006-01-02"

type StatementEntry struct {
	Date      string
	Method    string
	Reference string
	Amount    string
}

// StatementData is the printable view of one subscription ledger.
type StatementData struct {
	SubscriptionID string
	UserID         string
	CourseName     string
	Type           string
	Period         string
	Status         string
	Amount         string
	TotalPaid      string
	Pending        string
	Override       bool
	GeneratedAt    string
	Entries        []StatementEntry
}

// NewStatementData renders amounts in major units and masks transaction references.
func NewStatementData(sub subscriptiondomain.Subscription, now time.Time) StatementData {
	data := StatementData{
		SubscriptionID: sub.ID.String(),
		UserID:         sub.UserID.String(),
		Type:           string(sub.SubscriptionType),
		Period:         sub.StartDate.Format(dateLayout) + " to " + sub.EndDate.Format(dateLayout),
		Status:         string(sub.PaymentStatus),
		Amount:         FormatMoney(sub.Amount),
		TotalPaid:      FormatMoney(subscriptiondomain.TotalPaid(sub.PaymentHistory)),
		Pending:        FormatMoney(sub.PendingAmount),
		Override:       sub.PendingSource == subscriptiondomain.PendingSourceManualOverride,
		GeneratedAt:    now.UTC().Format(time.RFC3339),
		Entries:        make([]StatementEntry, 0, len(sub.PaymentHistory)),
	}
	if sub.CourseName != nil {
		data.CourseName = *sub.CourseName
	}
	for _, entry := range sub.PaymentHistory {
		reference := "-"
		if entry.TransactionID != nil && *entry.TransactionID != "" {
			reference = masking.MaskReference(*entry.TransactionID)
		}
		data.Entries = append(data.Entries, StatementEntry{
			Date:      entry.PaymentDate.Format(dateLayout),
			Method:    string(entry.PaymentMethod),
			Reference: reference,
			Amount:    FormatMoney(entry.Amount),
		})
	}
	return data
}

// FormatMoney prints minor units with two decimals.
func FormatMoney(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func (p *PDFProvider) GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payment statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Generated "+data.GeneratedAt, props.Text{Size: 8, Align: align.Right}),
	)

	m.AddRow(25,
		col.New(6).Add(
			text.New("Subscription: "+data.SubscriptionID, props.Text{Top: 0}),
			text.New("Student: "+data.UserID, props.Text{Top: 5}),
			text.New("Course: "+data.CourseName, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Plan: "+data.Type, props.Text{Top: 0}),
			text.New("Period: "+data.Period, props.Text{Top: 5}),
			text.New("Status: "+data.Status, props.Text{Top: 10, Style: fontstyle.Bold}),
		),
	)

	m.AddRow(10,
		text.NewCol(3, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Method", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Reference", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if len(data.Entries) == 0 {
		m.AddRow(10, text.NewCol(12, "No payments recorded", props.Text{Size: 9}))
	}
	for _, entry := range data.Entries {
		m.AddRow(8,
			text.NewCol(3, entry.Date, props.Text{Size: 9}),
			text.NewCol(3, entry.Method, props.Text{Size: 9}),
			text.NewCol(3, entry.Reference, props.Text{Size: 9}),
			text.NewCol(3, entry.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Amount due", props.Text{Size: 9}),
		text.NewCol(3, data.Amount, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Total paid", props.Text{Size: 9}),
		text.NewCol(3, data.TotalPaid, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Pending", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(3, data.Pending, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	if data.Override {
		m.AddRow(10, text.NewCol(12, "Pending amount set manually by an administrator.", props.Text{Size: 8, Style: fontstyle.Italic}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
