package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/encounter/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindPatient(ctx context.Context, db *gorm.DB, id int64) (*domain.Patient, error) {
	var patient domain.Patient
	err := db.WithContext(ctx).Raw(
		`SELECT id, full_name, phone, address FROM patients WHERE id = ?`,
		id,
	).Scan(&patient).Error
	if err != nil {
		return nil, err
	}
	if patient.ID == 0 {
		return nil, nil
	}
	return &patient, nil
}

type visitRow struct {
	ID              int64
	PatientID       int64
	DoctorFirstName *string
	DoctorLastName  *string
	VisitedAt       time.Time
	Fee             decimal.Decimal
}

func (r *repo) ListVisits(ctx context.Context, db *gorm.DB, patientID int64) ([]domain.VisitRecord, error) {
	var rows []visitRow
	err := db.WithContext(ctx).Raw(
		`SELECT v.id, v.patient_id, d.first_name AS doctor_first_name, d.last_name AS doctor_last_name,
		        v.visited_at, v.fee
		 FROM visits v
		 LEFT JOIN doctors d ON d.id = v.doctor_id
		 WHERE v.patient_id = ?
		 ORDER BY v.visited_at DESC, v.id DESC`,
		patientID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	visits := make([]domain.VisitRecord, 0, len(rows))
	for _, row := range rows {
		visits = append(visits, domain.VisitRecord{
			ID:         row.ID,
			PatientID:  row.PatientID,
			DoctorName: domain.DoctorDisplayName(deref(row.DoctorFirstName), deref(row.DoctorLastName)),
			VisitedAt:  row.VisitedAt.UTC(),
			Fee:        row.Fee,
		})
	}
	return visits, nil
}

type stayRow struct {
	ID              int64
	PatientID       int64
	DoctorFirstName *string
	DoctorLastName  *string
	AdmittedAt      time.Time
	DischargedAt    *time.Time
	WardNo          *string
	BedID           *int64
	BedWardType     *string
	BedNumber       *string
	BedDailyCharge  decimal.NullDecimal
}

func (r *repo) ListStays(ctx context.Context, db *gorm.DB, patientID int64) ([]domain.StayRecord, error) {
	var rows []stayRow
	err := db.WithContext(ctx).Raw(
		`SELECT s.id, s.patient_id, d.first_name AS doctor_first_name, d.last_name AS doctor_last_name,
		        s.admitted_at, s.discharged_at, s.ward_no,
		        b.id AS bed_id, b.ward_type AS bed_ward_type, b.bed_number AS bed_number,
		        b.daily_charge AS bed_daily_charge
		 FROM stays s
		 LEFT JOIN doctors d ON d.id = s.doctor_id
		 LEFT JOIN beds b ON b.id = s.bed_id
		 WHERE s.patient_id = ?
		 ORDER BY s.admitted_at DESC, s.id DESC`,
		patientID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stays := make([]domain.StayRecord, 0, len(rows))
	for _, row := range rows {
		stay := domain.StayRecord{
			ID:         row.ID,
			PatientID:  row.PatientID,
			DoctorName: domain.DoctorDisplayName(deref(row.DoctorFirstName), deref(row.DoctorLastName)),
			AdmittedAt: row.AdmittedAt.UTC(),
			WardNo:     deref(row.WardNo),
		}
		if row.DischargedAt != nil {
			discharged := row.DischargedAt.UTC()
			stay.DischargedAt = &discharged
		}
		if row.BedID != nil {
			stay.Bed = &domain.BedRate{
				ID:          *row.BedID,
				WardType:    deref(row.BedWardType),
				BedNumber:   deref(row.BedNumber),
				DailyCharge: row.BedDailyCharge.Decimal,
			}
		}
		stays = append(stays, stay)
	}
	return stays, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
