// Package backfill turns heuristic matches of legacy payments into explicit
// payment allocations.
package backfill

import (
	"context"
	"strconv"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/callercontext"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	reconciledomain "github.com/smallbiznis/carebill/internal/reconcile/domain"
	reconcileservice "github.com/smallbiznis/carebill/internal/reconcile/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const allocatedBy = "backfill"

var Module = fx.Module("backfill",
	fx.Provide(New),
)

type Options struct {
	DryRun bool
}

type Report struct {
	Patients    int
	Matched     int
	Written     int
	Allocations []ledgerdomain.PaymentAllocation
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Cfg       config.Config
	Reconcile *config.ReconcileConfigHolder
	Charges   chargedomain.Service
	Ledger    ledgerdomain.Repository
	Authz     authorization.Service
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Backfill struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	cfg       config.Config
	reconcile *config.ReconcileConfigHolder
	charges   chargedomain.Service
	ledger    ledgerdomain.Repository
	authz     authorization.Service
	auditSvc  auditdomain.Service
}

func New(p Params) *Backfill {
	return &Backfill{
		db:        p.DB,
		log:       p.Log.Named("backfill"),
		clock:     p.Clock,
		cfg:       p.Cfg,
		reconcile: p.Reconcile,
		charges:   p.Charges,
		ledger:    p.Ledger,
		authz:     p.Authz,
		auditSvc:  p.AuditSvc,
	}
}

// Run allocates every unlinked payment the matcher can place. Existing
// links are honoured first, so running it twice writes nothing new.
func (b *Backfill) Run(ctx context.Context, caller callercontext.Caller, opts Options) (Report, error) {
	if err := b.authz.Authorize(ctx, caller, authorization.ObjectPayment, authorization.ActionPaymentAllocate); err != nil {
		return Report{}, err
	}

	patients, err := b.ledger.ListPatientsWithUnlinkedPayments(ctx, b.db)
	if err != nil {
		return Report{}, err
	}

	report := Report{Patients: len(patients)}
	for _, patientID := range patients {
		allocations, err := b.planPatient(ctx, patientID)
		if err != nil {
			return report, err
		}
		report.Matched += len(allocations)
		report.Allocations = append(report.Allocations, allocations...)

		if opts.DryRun {
			continue
		}
		for i := range allocations {
			inserted, err := b.ledger.InsertAllocation(ctx, b.db, &allocations[i])
			if err != nil {
				return report, err
			}
			if !inserted {
				continue
			}
			report.Written++
			b.audit(ctx, caller, allocations[i])
		}
	}

	b.log.Info("backfill finished",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("patients", report.Patients),
		zap.Int("matched", report.Matched),
		zap.Int("written", report.Written),
	)
	return report, nil
}

func (b *Backfill) planPatient(ctx context.Context, patientID int64) ([]ledgerdomain.PaymentAllocation, error) {
	items, err := b.charges.Synthesize(ctx, patientID)
	if err != nil {
		return nil, err
	}
	payments, err := b.ledger.ListByPatient(ctx, b.db, patientID)
	if err != nil {
		return nil, err
	}
	existing, err := b.ledger.ListAllocationsByPatient(ctx, b.db, patientID)
	if err != nil {
		return nil, err
	}

	result := reconcileservice.Reconcile(items, payments, existing, reconciledomain.Options{
		StayMarkers: b.reconcile.Get().StayMarkers,
		Location:    b.cfg.Billing.Location(),
	})

	// a payment that already names an item keeps its link even when the
	// heuristic places it elsewhere
	linked := make(map[snowflake.ID]struct{}, len(existing))
	for _, allocation := range existing {
		linked[allocation.PaymentID] = struct{}{}
	}
	for _, payment := range payments {
		if payment.Link() != nil {
			linked[payment.ID] = struct{}{}
		}
	}

	now := b.clock.Now().UTC()
	var out []ledgerdomain.PaymentAllocation
	for _, item := range result.Items {
		if item.MatchedBy != chargedomain.MatchedByHeuristic || item.MatchedPaymentID == nil {
			continue
		}
		if _, ok := linked[*item.MatchedPaymentID]; ok {
			continue
		}
		out = append(out, ledgerdomain.PaymentAllocation{
			PaymentID:   *item.MatchedPaymentID,
			PatientID:   patientID,
			SourceKind:  item.Key.Kind,
			SourceID:    item.Key.SourceID,
			AllocatedBy: allocatedBy,
			CreatedAt:   now,
		})
	}
	return out, nil
}

func (b *Backfill) audit(ctx context.Context, caller callercontext.Caller, allocation ledgerdomain.PaymentAllocation) {
	if b.auditSvc == nil {
		return
	}
	_ = b.auditSvc.Record(ctx, auditdomain.Entry{
		Caller:     caller,
		Action:     auditdomain.ActionPaymentAllocated,
		TargetType: "payment_record",
		TargetID:   allocation.PaymentID.String(),
		Metadata: map[string]any{
			"patient_id": strconv.FormatInt(allocation.PatientID, 10),
			"bill_item":  allocation.Key().String(),
		},
	})
}
