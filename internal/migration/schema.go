package migration

import (
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	"gorm.io/gorm"
)

// The encounter tables belong to the clinical record system. These models
// only exist so non-postgres deployments and tests get the same read model.

type patientTable struct {
	ID       int64  `gorm:"primaryKey;autoIncrement:false"`
	FullName string `gorm:"not null"`
	Phone    string `gorm:"not null;default:''"`
	Address  string `gorm:"not null;default:''"`
}

func (patientTable) TableName() string { return "patients" }

type doctorTable struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	FirstName string `gorm:"not null;default:''"`
	LastName  string `gorm:"not null;default:''"`
}

func (doctorTable) TableName() string { return "doctors" }

type bedTable struct {
	ID          int64           `gorm:"primaryKey;autoIncrement:false"`
	WardType    string          `gorm:"not null;default:''"`
	BedNumber   string          `gorm:"not null;default:''"`
	DailyCharge decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

func (bedTable) TableName() string { return "beds" }

type visitTable struct {
	ID        int64           `gorm:"primaryKey;autoIncrement:false"`
	PatientID int64           `gorm:"not null;index"`
	DoctorID  *int64          ``
	VisitedAt time.Time       `gorm:"not null"`
	Fee       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

func (visitTable) TableName() string { return "visits" }

type stayTable struct {
	ID           int64 `gorm:"primaryKey;autoIncrement:false"`
	PatientID    int64 `gorm:"not null;index"`
	DoctorID     *int64
	BedID        *int64
	WardNo       *string
	AdmittedAt   time.Time `gorm:"not null"`
	DischargedAt *time.Time
}

func (stayTable) TableName() string { return "stays" }

// AutoMigrate creates every table the service reads or writes using gorm's
// dialect-aware DDL.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&patientTable{},
		&doctorTable{},
		&bedTable{},
		&visitTable{},
		&stayTable{},
		&ledgerdomain.PaymentRecord{},
		&ledgerdomain.PaymentAllocation{},
		&auditdomain.AuditLog{},
	)
}
