package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Patient is the minimal patient projection billing needs.
type Patient struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
}

// BedRate is a bed and its daily inpatient charge.
type BedRate struct {
	ID          int64           `json:"id"`
	WardType    string          `json:"ward_type"`
	BedNumber   string          `json:"bed_number"`
	DailyCharge decimal.Decimal `json:"daily_charge"`
}

// VisitRecord is a completed outpatient consultation.
type VisitRecord struct {
	ID         int64           `json:"id"`
	PatientID  int64           `json:"patient_id"`
	DoctorName string          `json:"doctor_name,omitempty"`
	VisitedAt  time.Time       `json:"visited_at"`
	Fee        decimal.Decimal `json:"fee"`
}

// StayRecord is an inpatient admission. DischargedAt is nil while the
// patient is still admitted, Bed is nil when no bed was assigned.
type StayRecord struct {
	ID           int64      `json:"id"`
	PatientID    int64      `json:"patient_id"`
	DoctorName   string     `json:"doctor_name,omitempty"`
	AdmittedAt   time.Time  `json:"admitted_at"`
	DischargedAt *time.Time `json:"discharged_at,omitempty"`
	Bed          *BedRate   `json:"bed,omitempty"`
	WardNo       string     `json:"ward_no,omitempty"`
}

// DoctorDisplayName joins first and last names, ignoring blanks.
func DoctorDisplayName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
