package domain

import (
	"context"
	"errors"

	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	"github.com/smallbiznis/carebill/pkg/money"
)

// Callback is what the hosted checkout posts back after a payment.
type Callback struct {
	PaymentID string
	OrderID   string
	Signature string
}

type SettleRequest struct {
	Callback      Callback
	PatientID     int64
	ClaimedAmount string
	Description   string
	// BillItem optionally names the item being paid ("visit:12", "OPD-12").
	BillItem string
}

type Service interface {
	SettlePayment(ctx context.Context, req SettleRequest) (ledgerdomain.PaymentRecord, error)
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrOrderMismatch    = errors.New("order_mismatch")
	ErrOrderExpired     = errors.New("order_expired")
	ErrInvalidCallback  = errors.New("invalid_callback")

	ErrPatientNotFound  = encounterdomain.ErrPatientNotFound
	ErrDuplicatePayment = ledgerdomain.ErrDuplicatePayment
	ErrInvalidAmount    = money.ErrInvalidAmount
)
