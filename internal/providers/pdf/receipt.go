package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyReceipt = errors.New("empty_receipt")

// ReceiptData holds the already formatted values printed on a payment receipt.
type ReceiptData struct {
	ClinicName     string
	ReceiptNumber  string
	PatientName    string
	PatientPhone   string
	PatientAddress string
	PaidAt         string
	Method         string
	Amount         string
	Description    string
	TransactionRef string
	BillItem       string
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) ([]byte, error) {
	if receipt.ReceiptNumber == "" || receipt.Amount == "" {
		return nil, ErrEmptyReceipt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payment Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.ClinicName, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date paid: "+receipt.PaidAt, props.Text{Top: 4}),
			text.New("Method: "+receipt.Method, props.Text{Top: 8}),
		),
		col.New(6),
	)

	billTo := col.New(6).Add(
		text.New("Received from", props.Text{Style: fontstyle.Bold}),
		text.New(receipt.PatientName, props.Text{Top: 5}),
	)
	if receipt.PatientAddress != "" {
		billTo.Add(text.New(receipt.PatientAddress, props.Text{Top: 9}))
	}
	if receipt.PatientPhone != "" {
		billTo.Add(text.New(receipt.PatientPhone, props.Text{Top: 13}))
	}
	m.AddRow(25, billTo, col.New(6))

	m.AddRow(15,
		text.NewCol(12, receipt.Amount+" paid on "+receipt.PaidAt, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(8, receipt.Description, props.Text{Size: 9}),
		text.NewCol(4, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)

	if receipt.BillItem != "" {
		m.AddRow(8,
			text.NewCol(12, "Applied to: "+receipt.BillItem, props.Text{Size: 9}),
		)
	}
	if receipt.TransactionRef != "" {
		m.AddRow(8,
			text.NewCol(12, "Transaction reference: "+receipt.TransactionRef, props.Text{Size: 9}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return doc.GetBytes(), nil
}
