package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository reads encounter data owned by the clinical record system.
type Repository interface {
	FindPatient(ctx context.Context, db *gorm.DB, id int64) (*Patient, error)
	ListVisits(ctx context.Context, db *gorm.DB, patientID int64) ([]VisitRecord, error)
	ListStays(ctx context.Context, db *gorm.DB, patientID int64) ([]StayRecord, error)
}

var ErrPatientNotFound = errors.New("patient_not_found")
