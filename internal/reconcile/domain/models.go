package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/callercontext"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
)

type Totals struct {
	TotalBilled  decimal.Decimal `json:"total_billed"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	TotalPending decimal.Decimal `json:"total_pending"`
}

// Options tune the heuristic pass.
type Options struct {
	StayMarkers []string
	Location    *time.Location
}

type Result struct {
	Items  []chargedomain.BillItem `json:"items"`
	Totals Totals                  `json:"totals"`
}

type BillView struct {
	PatientID int64 `json:"patient_id"`
	Result
}

type Service interface {
	ViewBill(ctx context.Context, caller callercontext.Caller, patientID int64) (BillView, error)
}
