package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/encounter/repository"
	"github.com/smallbiznis/carebill/internal/migration"
	"github.com/smallbiznis/carebill/internal/seed"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))
	return db
}

func TestFindPatient(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := repository.Provide()

	require.NoError(t, seed.InsertPatient(ctx, db, seed.Patient{ID: 4, FullName: "Ravi Kumar"}))

	patient, err := repo.FindPatient(ctx, db, 4)
	require.NoError(t, err)
	require.NotNil(t, patient)
	require.Equal(t, "Ravi Kumar", patient.FullName)

	missing, err := repo.FindPatient(ctx, db, 99)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestListVisitsJoinsDoctor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := repository.Provide()

	doctorID := int64(2)
	require.NoError(t, seed.InsertPatient(ctx, db, seed.Patient{ID: 1, FullName: "Asha"}))
	require.NoError(t, seed.InsertDoctor(ctx, db, seed.Doctor{ID: doctorID, FirstName: "Meera", LastName: "Iyer"}))
	require.NoError(t, seed.InsertVisit(ctx, db, seed.Visit{
		ID: 11, PatientID: 1, DoctorID: &doctorID,
		VisitedAt: time.Date(2024, 1, 12, 9, 0, 0, 0, time.UTC),
		Fee:       decimal.NewFromInt(300),
	}))
	require.NoError(t, seed.InsertVisit(ctx, db, seed.Visit{
		ID: 10, PatientID: 1,
		VisitedAt: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		Fee:       decimal.RequireFromString("500.50"),
	}))

	visits, err := repo.ListVisits(ctx, db, 1)
	require.NoError(t, err)
	require.Len(t, visits, 2)

	// newest first
	require.Equal(t, int64(11), visits[0].ID)
	require.Equal(t, "Meera Iyer", visits[0].DoctorName)
	require.True(t, visits[0].VisitedAt.Equal(time.Date(2024, 1, 12, 9, 0, 0, 0, time.UTC)))

	require.Equal(t, int64(10), visits[1].ID)
	require.Equal(t, "", visits[1].DoctorName)
	require.True(t, visits[1].Fee.Equal(decimal.RequireFromString("500.50")))
}

func TestListStaysWithAndWithoutBed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := repository.Provide()

	bedID := int64(3)
	ward := "W-7"
	discharged := time.Date(2024, 2, 4, 11, 0, 0, 0, time.UTC)
	require.NoError(t, seed.InsertPatient(ctx, db, seed.Patient{ID: 1, FullName: "Asha"}))
	require.NoError(t, seed.InsertBed(ctx, db, seed.Bed{ID: bedID, WardType: "General", BedNumber: "G-1", DailyCharge: decimal.NewFromInt(1000)}))
	require.NoError(t, seed.InsertStay(ctx, db, seed.Stay{
		ID: 1, PatientID: 1, BedID: &bedID,
		AdmittedAt:   time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC),
		DischargedAt: &discharged,
	}))
	require.NoError(t, seed.InsertStay(ctx, db, seed.Stay{
		ID: 2, PatientID: 1, WardNo: &ward,
		AdmittedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}))

	stays, err := repo.ListStays(ctx, db, 1)
	require.NoError(t, err)
	require.Len(t, stays, 2)

	require.Equal(t, int64(2), stays[0].ID)
	require.Nil(t, stays[0].Bed)
	require.Nil(t, stays[0].DischargedAt)
	require.Equal(t, "W-7", stays[0].WardNo)

	require.Equal(t, int64(1), stays[1].ID)
	require.NotNil(t, stays[1].Bed)
	require.Equal(t, "General", stays[1].Bed.WardType)
	require.True(t, stays[1].Bed.DailyCharge.Equal(decimal.NewFromInt(1000)))
	require.NotNil(t, stays[1].DischargedAt)
}

func TestListVisitsBreaksTiesByNewestID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := repository.Provide()

	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, seed.InsertPatient(ctx, db, seed.Patient{ID: 1, FullName: "Asha"}))
	for _, id := range []int64{5, 7, 6} {
		require.NoError(t, seed.InsertVisit(ctx, db, seed.Visit{ID: id, PatientID: 1, VisitedAt: at, Fee: decimal.NewFromInt(500)}))
	}

	visits, err := repo.ListVisits(ctx, db, 1)
	require.NoError(t, err)
	require.Len(t, visits, 3)
	require.Equal(t, []int64{7, 6, 5}, []int64{visits[0].ID, visits[1].ID, visits[2].ID})
}
