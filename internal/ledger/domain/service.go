package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/carebill/internal/callercontext"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
)

type ManualPaymentRequest struct {
	PatientID      int64
	Amount         string
	Currency       string
	Method         string
	Description    string
	TransactionRef string
	// BillItem optionally names the item being paid ("visit:12", "OPD-12").
	BillItem string
}

type ListPaymentsRequest struct {
	pagination.Pagination
	PatientID *int64
	From      *time.Time
	To        *time.Time
}

type ListPaymentsResponse struct {
	pagination.PageInfo
	Payments []PaymentRecord `json:"payments"`
}

type Service interface {
	// RecordManual appends a Cash or Insurance payment entered by staff.
	RecordManual(ctx context.Context, caller callercontext.Caller, req ManualPaymentRequest) (PaymentRecord, error)
	Get(ctx context.Context, caller callercontext.Caller, id string) (PaymentRecord, error)
	List(ctx context.Context, caller callercontext.Caller, req ListPaymentsRequest) (ListPaymentsResponse, error)
}

var (
	ErrInvalidMethod     = errors.New("invalid_method")
	ErrInvalidPatient    = errors.New("invalid_patient")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidTimeRange  = errors.New("invalid_time_range")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrNotFound          = errors.New("not_found")
	ErrDuplicatePayment  = errors.New("duplicate_payment")
	ErrDescriptionLength = errors.New("invalid_description")
)
