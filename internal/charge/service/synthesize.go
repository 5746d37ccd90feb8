package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/charge/domain"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
)

const (
	unknownDoctor = "Unknown"
	unknownWard   = "Unassigned"
)

// Input is everything Synthesize needs. Location decides calendar days.
type Input struct {
	Visits   []encounterdomain.VisitRecord
	Stays    []encounterdomain.StayRecord
	Now      time.Time
	Location *time.Location
}

// Synthesize turns encounter records into pending bill items: one per
// visit followed by one per stay, in input order. It never fails.
func Synthesize(in Input) []domain.BillItem {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	items := make([]domain.BillItem, 0, len(in.Visits)+len(in.Stays))
	for _, visit := range in.Visits {
		items = append(items, visitItem(visit))
	}
	for _, stay := range in.Stays {
		items = append(items, stayItem(stay, in.Now, loc))
	}
	return items
}

func visitItem(visit encounterdomain.VisitRecord) domain.BillItem {
	doctor := strings.TrimSpace(visit.DoctorName)
	if doctor == "" {
		doctor = unknownDoctor
	}
	key := domain.ItemKey{Kind: domain.KindVisit, SourceID: visit.ID}
	return domain.BillItem{
		Key:         key,
		Reference:   key.Reference(),
		PatientID:   visit.PatientID,
		IncurredAt:  visit.VisitedAt,
		Description: "Consultation - Dr. " + doctor,
		Amount:      nonNegative(visit.Fee),
		Status:      domain.StatusPending,
	}
}

func stayItem(stay encounterdomain.StayRecord, now time.Time, loc *time.Location) domain.BillItem {
	end := now
	if stay.DischargedAt != nil {
		end = *stay.DischargedAt
	}
	days := BillableDays(stay.AdmittedAt, end, loc)

	amount := decimal.Zero
	ward := strings.TrimSpace(stay.WardNo)
	if stay.Bed != nil {
		amount = nonNegative(stay.Bed.DailyCharge).Mul(decimal.NewFromInt(int64(days)))
		if ward == "" {
			ward = strings.TrimSpace(stay.Bed.WardType)
		}
	}
	if ward == "" {
		ward = unknownWard
	}

	key := domain.ItemKey{Kind: domain.KindStay, SourceID: stay.ID}
	return domain.BillItem{
		Key:          key,
		Reference:    key.Reference(),
		PatientID:    stay.PatientID,
		IncurredAt:   stay.AdmittedAt,
		Description:  fmt.Sprintf("Inpatient Care - %d Days (Ward: %s)", days, ward),
		Amount:       amount,
		BillableDays: days,
		Status:       domain.StatusPending,
	}
}

// BillableDays counts calendar days between admission and end in loc, with
// a minimum of one. A discharge before admission also bills one day.
func BillableDays(admitted, end time.Time, loc *time.Location) int {
	days := CalendarDaysBetween(admitted, end, loc)
	if days < 1 {
		return 1
	}
	return days
}

// CalendarDaysBetween returns the difference of the calendar dates of a and b
// as observed in loc.
func CalendarDaysBetween(a, b time.Time, loc *time.Location) int {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// SameCalendarDay reports whether a and b fall on the same date in loc.
func SameCalendarDay(a, b time.Time, loc *time.Location) bool {
	return CalendarDaysBetween(a, b, loc) == 0
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
