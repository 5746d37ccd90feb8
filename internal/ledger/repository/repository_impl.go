package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/ledger/domain"
	pkgdb "github.com/smallbiznis/carebill/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) (bool, error) {
	if record == nil {
		return false, errors.New("payment record is required")
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_payment_id"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		// Dialects without a matching conflict target still report the
		// unique violation.
		if pkgdb.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentRecord, error) {
	var records []domain.PaymentRecord
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (r *repo) FindByGatewayPaymentID(ctx context.Context, db *gorm.DB, gatewayPaymentID string) (*domain.PaymentRecord, error) {
	var records []domain.PaymentRecord
	err := db.WithContext(ctx).
		Where("gateway_payment_id = ?", gatewayPaymentID).
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// ListByPatient returns every payment of a patient, newest first. This is
// the order the matcher scans the payment pool in.
func (r *repo) ListByPatient(ctx context.Context, db *gorm.DB, patientID int64) ([]domain.PaymentRecord, error) {
	var records []domain.PaymentRecord
	err := db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("paid_at desc, id desc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.PaymentRecord, error) {
	var records []*domain.PaymentRecord
	stmt := db.WithContext(ctx).Model(&domain.PaymentRecord{})

	if filter.PatientID != nil {
		stmt = stmt.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.From != nil {
		stmt = stmt.Where("paid_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("paid_at <= ?", filter.To.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(paid_at < ?) OR (paid_at = ? AND id < ?)",
			filter.Cursor.PaidAt.UTC(),
			filter.Cursor.PaidAt.UTC(),
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("paid_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) InsertAllocation(ctx context.Context, db *gorm.DB, allocation *domain.PaymentAllocation) (bool, error) {
	if allocation == nil {
		return false, errors.New("payment allocation is required")
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(allocation)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListAllocationsByPatient(ctx context.Context, db *gorm.DB, patientID int64) ([]domain.PaymentAllocation, error) {
	var allocations []domain.PaymentAllocation
	err := db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("payment_id asc").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

func (r *repo) ListPatientsWithUnlinkedPayments(ctx context.Context, db *gorm.DB) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT p.patient_id
		 FROM payment_records p
		 LEFT JOIN payment_allocations a ON a.payment_id = p.id
		 WHERE p.bill_source_id IS NULL AND a.payment_id IS NULL
		 ORDER BY p.patient_id`,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
