package service

import (
	"context"

	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/callercontext"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
	"github.com/smallbiznis/carebill/internal/config"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	"github.com/smallbiznis/carebill/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Reconcile  *config.ReconcileConfigHolder
	Charges    chargedomain.Service
	Encounters encounterdomain.Repository
	Ledger     ledgerdomain.Repository
	Authz      authorization.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	reconcile  *config.ReconcileConfigHolder
	charges    chargedomain.Service
	encounters encounterdomain.Repository
	ledger     ledgerdomain.Repository
	authz      authorization.Service
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("reconcile.service"),
		cfg:        p.Cfg,
		reconcile:  p.Reconcile,
		charges:    p.Charges,
		encounters: p.Encounters,
		ledger:     p.Ledger,
		authz:      p.Authz,
		metrics:    p.Metrics,
	}
}

func (s *Service) ViewBill(ctx context.Context, caller callercontext.Caller, patientID int64) (domain.BillView, error) {
	if err := s.authz.Authorize(ctx, caller, authorization.ObjectBill, authorization.ActionBillView); err != nil {
		return domain.BillView{}, err
	}
	if !caller.CanAccessPatient(patientID) {
		return domain.BillView{}, authorization.ErrForbidden
	}

	patient, err := s.encounters.FindPatient(ctx, s.db, patientID)
	if err != nil {
		return domain.BillView{}, err
	}
	if patient == nil {
		return domain.BillView{}, encounterdomain.ErrPatientNotFound
	}

	items, err := s.charges.Synthesize(ctx, patientID)
	if err != nil {
		return domain.BillView{}, err
	}
	payments, err := s.ledger.ListByPatient(ctx, s.db, patientID)
	if err != nil {
		return domain.BillView{}, err
	}
	allocations, err := s.ledger.ListAllocationsByPatient(ctx, s.db, patientID)
	if err != nil {
		return domain.BillView{}, err
	}

	result := Reconcile(items, payments, allocations, domain.Options{
		StayMarkers: s.reconcile.Get().StayMarkers,
		Location:    s.cfg.Billing.Location(),
	})

	s.metrics.RecordBillView(ctx, string(caller.Role))
	s.log.Debug("bill reconciled",
		zap.Int("items", len(result.Items)),
		zap.Int("payments", len(payments)),
		zap.Int("allocations", len(allocations)),
	)

	return domain.BillView{PatientID: patientID, Result: result}, nil
}
