package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditrepository "github.com/smallbiznis/carebill/internal/audit/repository"
	auditservice "github.com/smallbiznis/carebill/internal/audit/service"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/callercontext"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
	chargeservice "github.com/smallbiznis/carebill/internal/charge/service"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	encounterrepository "github.com/smallbiznis/carebill/internal/encounter/repository"
	"github.com/smallbiznis/carebill/internal/ledger/domain"
	"github.com/smallbiznis/carebill/internal/ledger/repository"
	"github.com/smallbiznis/carebill/internal/ledger/service"
	"github.com/smallbiznis/carebill/internal/migration"
	"github.com/smallbiznis/carebill/internal/seed"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"github.com/smallbiznis/carebill/pkg/money"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	staff   = callercontext.Caller{Role: callercontext.RoleStaff}
	patient = callercontext.Caller{Role: callercontext.RolePatient, PatientID: 1}
)

type fixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	svc   domain.Service
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))
	return db
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, seed.InsertPatient(ctx, db, seed.Patient{ID: 1, FullName: "Asha"}))
	require.NoError(t, seed.InsertPatient(ctx, db, seed.Patient{ID: 2, FullName: "Ravi"}))
	require.NoError(t, seed.InsertVisit(ctx, db, seed.Visit{
		ID: 10, PatientID: 1, VisitedAt: time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), Fee: decimal.NewFromInt(500),
	}))
	require.NoError(t, seed.InsertVisit(ctx, db, seed.Visit{
		ID: 20, PatientID: 2, VisitedAt: time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), Fee: decimal.NewFromInt(500),
	}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Repo: auditrepository.Provide(),
	})
	cfg := config.Config{Gateway: config.GatewayConfig{DefaultCurrency: "INR"}}
	encounters := encounterrepository.Provide()
	svc := service.NewService(service.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		Cfg:        cfg,
		Repo:       repository.Provide(),
		Encounters: encounters,
		Charges: chargeservice.NewService(chargeservice.Params{
			DB: db, Log: zap.NewNop(), Clock: fake, Cfg: cfg, Encounters: encounters,
		}),
		Authz:      authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		AuditSvc:   auditSvc,
	})
	return fixture{db: db, clock: fake, svc: svc}
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()
	var count int64
	require.NoError(t, db.Raw(query).Scan(&count).Error)
	require.Equal(t, expected, count, query)
}

func TestRecordManualAppendsCashPayment(t *testing.T) {
	f := newFixture(t)

	record, err := f.svc.RecordManual(context.Background(), staff, domain.ManualPaymentRequest{
		PatientID:      1,
		Amount:         "500",
		Method:         "Cash",
		TransactionRef: "RCPT-1",
		BillItem:       "OPD-10",
	})
	require.NoError(t, err)

	require.Equal(t, domain.MethodCash, record.Method)
	require.Equal(t, "INR", record.Currency)
	require.Equal(t, domain.DefaultDescription, record.Description)
	require.True(t, record.Amount.Equal(decimal.NewFromInt(500)))
	require.Equal(t, chargedomain.KindVisit, record.BillKind)
	require.NotNil(t, record.BillSourceID)
	require.Equal(t, int64(10), *record.BillSourceID)
	require.Nil(t, record.GatewayPaymentID)

	assertCount(t, f.db, "SELECT COUNT(*) FROM payment_records", 1)
	assertCount(t, f.db, "SELECT COUNT(*) FROM audit_logs WHERE action = 'payment.manual.recorded'", 1)
}

func TestRecordManualValidation(t *testing.T) {
	tests := []struct {
		name   string
		caller callercontext.Caller
		req    domain.ManualPaymentRequest
		err    error
	}{
		{"online method rejected", staff, domain.ManualPaymentRequest{PatientID: 1, Amount: "10", Method: "Online"}, domain.ErrInvalidMethod},
		{"unknown method rejected", staff, domain.ManualPaymentRequest{PatientID: 1, Amount: "10", Method: "Cheque"}, domain.ErrInvalidMethod},
		{"zero amount", staff, domain.ManualPaymentRequest{PatientID: 1, Amount: "0", Method: "Cash"}, money.ErrInvalidAmount},
		{"rounds to zero", staff, domain.ManualPaymentRequest{PatientID: 1, Amount: "0.004", Method: "Cash"}, money.ErrInvalidAmount},
		{"missing patient", staff, domain.ManualPaymentRequest{PatientID: 42, Amount: "10", Method: "Insurance"}, encounterdomain.ErrPatientNotFound},
		{"bad bill item", staff, domain.ManualPaymentRequest{PatientID: 1, Amount: "10", Method: "Cash", BillItem: "LAB-1"}, chargedomain.ErrInvalidItemKey},
		{"unknown bill item", staff, domain.ManualPaymentRequest{PatientID: 1, Amount: "500", Method: "Cash", BillItem: "visit:999"}, chargedomain.ErrInvalidItemKey},
		{"another patient's bill item", staff, domain.ManualPaymentRequest{PatientID: 1, Amount: "500", Method: "Cash", BillItem: "OPD-20"}, chargedomain.ErrInvalidItemKey},
		{"amount above column limit", staff, domain.ManualPaymentRequest{PatientID: 1, Amount: "100000000000000000000", Method: "Cash"}, money.ErrInvalidAmount},
		{"patient cannot record", patient, domain.ManualPaymentRequest{PatientID: 1, Amount: "10", Method: "Cash"}, authorization.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.RecordManual(context.Background(), tt.caller, tt.req)
			require.ErrorIs(t, err, tt.err)
			assertCount(t, f.db, "SELECT COUNT(*) FROM payment_records", 0)
		})
	}
}

func TestGetHidesOtherPatientsPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.svc.RecordManual(ctx, staff, domain.ManualPaymentRequest{PatientID: 2, Amount: "75", Method: "Insurance"})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, staff, record.ID.String())
	require.NoError(t, err)
	require.Equal(t, record.ID, got.ID)

	_, err = f.svc.Get(ctx, patient, record.ID.String())
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Get(ctx, staff, "not-an-id")
	require.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []snowflake.ID
	for i := 0; i < 5; i++ {
		record, err := f.svc.RecordManual(ctx, staff, domain.ManualPaymentRequest{PatientID: 1, Amount: "10", Method: "Cash"})
		require.NoError(t, err)
		ids = append(ids, record.ID)
		f.clock.Advance(time.Hour)
	}
	_, err := f.svc.RecordManual(ctx, staff, domain.ManualPaymentRequest{PatientID: 2, Amount: "10", Method: "Cash"})
	require.NoError(t, err)

	patientID := int64(1)
	req := domain.ListPaymentsRequest{PatientID: &patientID}
	req.PageSize = 2

	first, err := f.svc.List(ctx, staff, req)
	require.NoError(t, err)
	require.True(t, first.HasMore)
	require.Len(t, first.Payments, 2)
	require.Equal(t, ids[4], first.Payments[0].ID)
	require.Equal(t, ids[3], first.Payments[1].ID)

	req.PageToken = first.NextPageToken
	second, err := f.svc.List(ctx, staff, req)
	require.NoError(t, err)
	require.Len(t, second.Payments, 2)
	require.Equal(t, ids[2], second.Payments[0].ID)

	req.PageToken = second.NextPageToken
	third, err := f.svc.List(ctx, staff, req)
	require.NoError(t, err)
	require.False(t, third.HasMore)
	require.Empty(t, third.NextPageToken)
	require.Len(t, third.Payments, 1)
	require.Equal(t, ids[0], third.Payments[0].ID)
}

func TestListScopesPatientCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordManual(ctx, staff, domain.ManualPaymentRequest{PatientID: 1, Amount: "10", Method: "Cash"})
	require.NoError(t, err)
	_, err = f.svc.RecordManual(ctx, staff, domain.ManualPaymentRequest{PatientID: 2, Amount: "20", Method: "Cash"})
	require.NoError(t, err)

	resp, err := f.svc.List(ctx, patient, domain.ListPaymentsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Payments, 1)
	require.Equal(t, int64(1), resp.Payments[0].PatientID)

	other := int64(2)
	_, err = f.svc.List(ctx, patient, domain.ListPaymentsRequest{PatientID: &other})
	require.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.List(ctx, staff, domain.ListPaymentsRequest{Pagination: pagination.Pagination{PageToken: "garbage"}})
	require.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
