package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/carebill/internal/callercontext"
	"gorm.io/gorm"
)

const (
	ActionManualPaymentRecorded = "payment.manual.recorded"
	ActionPaymentSettled        = "payment.online.settled"
	ActionPaymentRejected       = "payment.online.rejected"
	ActionPaymentAllocated      = "payment.allocation.created"
)

type Entry struct {
	Caller     callercontext.Caller
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
}

var ErrInvalidAction = errors.New("invalid_action")
