package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/callercontext"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
	chargeservice "github.com/smallbiznis/carebill/internal/charge/service"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	encounterrepository "github.com/smallbiznis/carebill/internal/encounter/repository"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/carebill/internal/ledger/repository"
	"github.com/smallbiznis/carebill/internal/migration"
	"github.com/smallbiznis/carebill/internal/reconcile/domain"
	"github.com/smallbiznis/carebill/internal/reconcile/service"
	"github.com/smallbiznis/carebill/internal/seed"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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

func newBillService(t *testing.T, db *gorm.DB, now time.Time) domain.Service {
	t.Helper()
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)

	cfg := config.Config{}
	encounters := encounterrepository.Provide()
	charges := chargeservice.NewService(chargeservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		Clock:      clock.NewFakeClock(now),
		Cfg:        cfg,
		Encounters: encounters,
	})

	return service.NewService(service.Params{
		DB:         db,
		Log:        zap.NewNop(),
		Cfg:        cfg,
		Reconcile:  config.NewStaticReconcileConfigHolder(config.DefaultReconcileConfig()),
		Charges:    charges,
		Encounters: encounters,
		Ledger:     ledgerrepository.Provide(),
		Authz:      authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})
}

func insertPayment(t *testing.T, db *gorm.DB, id int64, patientID int64, amount int64, paidAt time.Time, description string) {
	t.Helper()
	_, err := ledgerrepository.Provide().Insert(context.Background(), db, &ledgerdomain.PaymentRecord{
		ID:          snowflake.ID(id),
		PatientID:   patientID,
		Amount:      decimal.NewFromInt(amount),
		Currency:    "INR",
		Method:      ledgerdomain.MethodCash,
		PaidAt:      paidAt,
		Description: description,
		CreatedAt:   paidAt,
	})
	require.NoError(t, err)
}

func TestViewBillEndToEnd(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, seed.Demo(ctx, db))

	insertPayment(t, db, 1001, 1, 500, time.Date(2024, 1, 10, 16, 0, 0, 0, time.UTC), "Bill Payment")
	insertPayment(t, db, 1002, 1, 3000, time.Date(2024, 2, 5, 9, 0, 0, 0, time.UTC), "IPD Bill Payment")

	svc := newBillService(t, db, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	view, err := svc.ViewBill(ctx, callercontext.Caller{Role: callercontext.RolePatient, PatientID: 1}, 1)
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	stay, visit := view.Items[0], view.Items[1]

	require.Equal(t, chargedomain.KindStay, stay.Key.Kind)
	require.True(t, stay.Amount.Equal(decimal.NewFromInt(3000)))
	require.Equal(t, 3, stay.BillableDays)
	require.True(t, stay.Paid())

	require.Equal(t, chargedomain.KindVisit, visit.Key.Kind)
	require.True(t, visit.Paid())

	require.True(t, view.Totals.TotalBilled.Equal(decimal.NewFromInt(3500)))
	require.True(t, view.Totals.TotalPaid.Equal(decimal.NewFromInt(3500)))
	require.True(t, view.Totals.TotalPending.IsZero())
}

func TestViewBillAccessControl(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, seed.Demo(ctx, db))
	svc := newBillService(t, db, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.ViewBill(ctx, callercontext.Caller{Role: callercontext.RolePatient, PatientID: 2}, 1)
	require.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = svc.ViewBill(ctx, callercontext.Caller{Role: callercontext.RoleStaff}, 404)
	require.ErrorIs(t, err, encounterdomain.ErrPatientNotFound)

	view, err := svc.ViewBill(ctx, callercontext.Caller{Role: callercontext.RoleDoctor}, 1)
	require.NoError(t, err)
	require.True(t, view.Totals.TotalPaid.IsZero())
	require.True(t, view.Totals.TotalPending.Equal(decimal.NewFromInt(3500)))
}

func TestViewBillLinkedPaymentMustCoverItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, seed.Demo(ctx, db))

	repo := ledgerrepository.Provide()
	link := func(id int64, amount int64, paidAt time.Time, kind chargedomain.Kind, sourceID int64) {
		_, err := repo.Insert(ctx, db, &ledgerdomain.PaymentRecord{
			ID:           snowflake.ID(id),
			PatientID:    1,
			Amount:       decimal.NewFromInt(amount),
			Currency:     "INR",
			Method:       ledgerdomain.MethodCash,
			PaidAt:       paidAt,
			Description:  ledgerdomain.DefaultDescription,
			BillKind:     kind,
			BillSourceID: &sourceID,
			CreatedAt:    paidAt,
		})
		require.NoError(t, err)
	}
	// a token payment against the stay and a visit-sized payment against a visit that does not exist
	link(2001, 1, time.Date(2024, 2, 5, 9, 0, 0, 0, time.UTC), chargedomain.KindStay, 1)
	link(2002, 500, time.Date(2024, 1, 10, 16, 0, 0, 0, time.UTC), chargedomain.KindVisit, 999)

	svc := newBillService(t, db, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	view, err := svc.ViewBill(ctx, callercontext.Caller{Role: callercontext.RoleStaff}, 1)
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	stay, visit := view.Items[0], view.Items[1]
	require.Equal(t, chargedomain.KindStay, stay.Key.Kind)
	require.False(t, stay.Paid())

	require.Equal(t, chargedomain.KindVisit, visit.Key.Kind)
	require.True(t, visit.Paid())
	require.Equal(t, chargedomain.MatchedByHeuristic, visit.MatchedBy)

	require.True(t, view.Totals.TotalPaid.Equal(decimal.NewFromInt(501)))
	require.True(t, view.Totals.TotalPending.Equal(decimal.NewFromInt(3000)))
}

func TestViewBillPaysLatestOfEqualVisits(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, seed.InsertPatient(ctx, db, seed.Patient{ID: 1, FullName: "Asha"}))
	for _, v := range []seed.Visit{
		{ID: 1, PatientID: 1, VisitedAt: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), Fee: decimal.NewFromInt(500)},
		{ID: 2, PatientID: 1, VisitedAt: time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC), Fee: decimal.NewFromInt(500)},
	} {
		require.NoError(t, seed.InsertVisit(ctx, db, v))
	}
	insertPayment(t, db, 1001, 1, 500, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC), "Bill Payment")

	svc := newBillService(t, db, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	view, err := svc.ViewBill(ctx, callercontext.Caller{Role: callercontext.RoleStaff}, 1)
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	require.Equal(t, int64(2), view.Items[0].Key.SourceID)
	require.True(t, view.Items[0].Paid())
	require.Equal(t, int64(1), view.Items[1].Key.SourceID)
	require.False(t, view.Items[1].Paid())
}
