package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodCash      Method = "Cash"
	MethodOnline    Method = "Online"
	MethodInsurance Method = "Insurance"
)

func ParseMethod(raw string) (Method, bool) {
	switch Method(raw) {
	case MethodCash, "cash", "CASH":
		return MethodCash, true
	case MethodOnline, "online", "ONLINE":
		return MethodOnline, true
	case MethodInsurance, "insurance", "INSURANCE":
		return MethodInsurance, true
	default:
		return "", false
	}
}

const DefaultDescription = "Bill Payment"

// PaymentRecord is an append-only ledger row. Gateway fields are set only
// for verified Online payments; BillKind and BillSourceID link the payment
// to the bill item it settles when the payer said so at creation time.
type PaymentRecord struct {
	ID               snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	PatientID        int64             `gorm:"not null;index:ix_payment_records_patient_paid_at,priority:1" json:"patient_id"`
	Amount           decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency         string            `gorm:"size:3;not null" json:"currency"`
	Method           Method            `gorm:"size:16;not null" json:"method"`
	PaidAt           time.Time         `gorm:"not null;index:ix_payment_records_patient_paid_at,priority:2" json:"paid_at"`
	Description      string            `gorm:"not null" json:"description"`
	TransactionRef   *string           `gorm:"size:128" json:"transaction_ref,omitempty"`
	GatewayOrderID   *string           `gorm:"size:64" json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string           `gorm:"size:64;uniqueIndex:ux_payment_records_gateway_payment_id" json:"gateway_payment_id,omitempty"`
	GatewaySignature *string           `gorm:"size:128" json:"-"`
	BillKind         chargedomain.Kind `gorm:"size:8;not null" json:"bill_kind,omitempty"`
	BillSourceID     *int64            `json:"bill_source_id,omitempty"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

// Link returns the explicit bill item reference recorded with the payment.
func (p PaymentRecord) Link() *chargedomain.ItemKey {
	if p.BillKind == "" || p.BillSourceID == nil {
		return nil
	}
	return &chargedomain.ItemKey{Kind: p.BillKind, SourceID: *p.BillSourceID}
}

// PaymentAllocation links a legacy payment to a bill item after the fact.
// Written once per payment by the backfill tool.
type PaymentAllocation struct {
	PaymentID   snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"payment_id"`
	PatientID   int64             `gorm:"not null;index" json:"patient_id"`
	SourceKind  chargedomain.Kind `gorm:"size:8;not null" json:"source_kind"`
	SourceID    int64             `gorm:"not null" json:"source_id"`
	AllocatedBy string            `gorm:"size:32;not null" json:"allocated_by"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
}

func (PaymentAllocation) TableName() string { return "payment_allocations" }

func (a PaymentAllocation) Key() chargedomain.ItemKey {
	return chargedomain.ItemKey{Kind: a.SourceKind, SourceID: a.SourceID}
}

type ListFilter struct {
	PatientID *int64
	From      *time.Time
	To        *time.Time
	Cursor    *Cursor
	Limit     int
}

type Cursor struct {
	ID     snowflake.ID
	PaidAt time.Time
}
