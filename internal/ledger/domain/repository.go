package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert appends a record. inserted is false when a record with the same
	// gateway payment id already exists.
	Insert(ctx context.Context, db *gorm.DB, record *PaymentRecord) (inserted bool, err error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRecord, error)
	FindByGatewayPaymentID(ctx context.Context, db *gorm.DB, gatewayPaymentID string) (*PaymentRecord, error)
	ListByPatient(ctx context.Context, db *gorm.DB, patientID int64) ([]PaymentRecord, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*PaymentRecord, error)

	InsertAllocation(ctx context.Context, db *gorm.DB, allocation *PaymentAllocation) (inserted bool, err error)
	ListAllocationsByPatient(ctx context.Context, db *gorm.DB, patientID int64) ([]PaymentAllocation, error)
	ListPatientsWithUnlinkedPayments(ctx context.Context, db *gorm.DB) ([]int64, error)
}
