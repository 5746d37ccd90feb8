// Package seed writes encounter read-model rows. It backs the demo dataset
// of carebillctl and the fixtures used by package tests.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Patient struct {
	ID       int64
	FullName string
	Phone    string
	Address  string
}

type Doctor struct {
	ID        int64
	FirstName string
	LastName  string
}

type Bed struct {
	ID          int64
	WardType    string
	BedNumber   string
	DailyCharge decimal.Decimal
}

type Visit struct {
	ID        int64
	PatientID int64
	DoctorID  *int64
	VisitedAt time.Time
	Fee       decimal.Decimal
}

type Stay struct {
	ID           int64
	PatientID    int64
	DoctorID     *int64
	BedID        *int64
	WardNo       *string
	AdmittedAt   time.Time
	DischargedAt *time.Time
}

var errNilDB = errors.New("seed database handle is required")

func InsertPatient(ctx context.Context, db *gorm.DB, p Patient) error {
	if db == nil {
		return errNilDB
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO patients (id, full_name, phone, address) VALUES (?, ?, ?, ?)`,
		p.ID, p.FullName, p.Phone, p.Address,
	).Error
}

func InsertDoctor(ctx context.Context, db *gorm.DB, d Doctor) error {
	if db == nil {
		return errNilDB
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO doctors (id, first_name, last_name) VALUES (?, ?, ?)`,
		d.ID, d.FirstName, d.LastName,
	).Error
}

func InsertBed(ctx context.Context, db *gorm.DB, b Bed) error {
	if db == nil {
		return errNilDB
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO beds (id, ward_type, bed_number, daily_charge) VALUES (?, ?, ?, ?)`,
		b.ID, b.WardType, b.BedNumber, b.DailyCharge,
	).Error
}

func InsertVisit(ctx context.Context, db *gorm.DB, v Visit) error {
	if db == nil {
		return errNilDB
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO visits (id, patient_id, doctor_id, visited_at, fee) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.PatientID, v.DoctorID, v.VisitedAt.UTC(), v.Fee,
	).Error
}

func InsertStay(ctx context.Context, db *gorm.DB, s Stay) error {
	if db == nil {
		return errNilDB
	}
	var discharged *time.Time
	if s.DischargedAt != nil {
		t := s.DischargedAt.UTC()
		discharged = &t
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO stays (id, patient_id, doctor_id, bed_id, ward_no, admitted_at, discharged_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PatientID, s.DoctorID, s.BedID, s.WardNo, s.AdmittedAt.UTC(), discharged,
	).Error
}

// Demo seeds one patient with a consultation and a discharged ward stay.
// It is a no-op when patient 1 already exists.
func Demo(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errNilDB
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Table("patients").Where("id = ?", 1).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		doctorID := int64(1)
		bedID := int64(1)
		admitted := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
		discharged := time.Date(2024, 2, 4, 11, 0, 0, 0, time.UTC)

		if err := InsertPatient(ctx, tx, Patient{ID: 1, FullName: "Asha Rao", Phone: "+91-9800000001", Address: "12 MG Road"}); err != nil {
			return err
		}
		if err := InsertDoctor(ctx, tx, Doctor{ID: doctorID, FirstName: "Meera", LastName: "Iyer"}); err != nil {
			return err
		}
		if err := InsertBed(ctx, tx, Bed{ID: bedID, WardType: "General", BedNumber: "G-04", DailyCharge: decimal.NewFromInt(1000)}); err != nil {
			return err
		}
		if err := InsertVisit(ctx, tx, Visit{
			ID:        1,
			PatientID: 1,
			DoctorID:  &doctorID,
			VisitedAt: time.Date(2024, 1, 10, 10, 30, 0, 0, time.UTC),
			Fee:       decimal.NewFromInt(500),
		}); err != nil {
			return err
		}
		return InsertStay(ctx, tx, Stay{
			ID:           1,
			PatientID:    1,
			DoctorID:     &doctorID,
			BedID:        &bedID,
			AdmittedAt:   admitted,
			DischargedAt: &discharged,
		})
	})
}
