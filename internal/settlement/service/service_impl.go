package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/callercontext"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	gatewaydomain "github.com/smallbiznis/carebill/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	"github.com/smallbiznis/carebill/internal/settlement/domain"
	"github.com/smallbiznis/carebill/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const transactionRefPrefix = "RZP-"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Reconcile  *config.ReconcileConfigHolder
	Encounters encounterdomain.Repository
	Charges    chargedomain.Service
	Ledger     ledgerdomain.Repository
	Orders     gatewaydomain.OrderStore
	AuditSvc   auditdomain.Service `optional:"true"`
	Metrics    *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	secret      string
	defCurrency string
	reconcile   *config.ReconcileConfigHolder
	encounters  encounterdomain.Repository
	charges     chargedomain.Service
	ledger      ledgerdomain.Repository
	orders      gatewaydomain.OrderStore
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("settlement.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		secret:      p.Cfg.Gateway.KeySecret,
		defCurrency: p.Cfg.Gateway.DefaultCurrency,
		reconcile:   p.Reconcile,
		encounters:  p.Encounters,
		charges:     p.Charges,
		ledger:      p.Ledger,
		orders:      p.Orders,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

// SettlePayment verifies a checkout callback and appends the payment to the
// ledger. Once started it runs to completion even if the caller goes away.
func (s *Service) SettlePayment(ctx context.Context, req domain.SettleRequest) (ledgerdomain.PaymentRecord, error) {
	ctx = context.WithoutCancel(ctx)

	cb := domain.Callback{
		PaymentID: strings.TrimSpace(req.Callback.PaymentID),
		OrderID:   strings.TrimSpace(req.Callback.OrderID),
		Signature: strings.TrimSpace(req.Callback.Signature),
	}
	log := s.log.With(zap.String("order_id", cb.OrderID), zap.String("gateway_payment_id", cb.PaymentID))

	if cb.PaymentID == "" || cb.OrderID == "" || cb.Signature == "" {
		return s.reject(ctx, log, cb, req.PatientID, domain.ErrInvalidCallback)
	}
	if !VerifySignature(s.secret, cb.OrderID, cb.PaymentID, cb.Signature) {
		return s.reject(ctx, log, cb, req.PatientID, domain.ErrInvalidSignature)
	}

	patient, err := s.encounters.FindPatient(ctx, s.db, req.PatientID)
	if err != nil {
		return ledgerdomain.PaymentRecord{}, err
	}
	if patient == nil {
		return s.reject(ctx, log, cb, req.PatientID, domain.ErrPatientNotFound)
	}

	amount, err := money.ParsePositive(req.ClaimedAmount)
	if err != nil {
		return s.reject(ctx, log, cb, req.PatientID, domain.ErrInvalidAmount)
	}

	var link *chargedomain.ItemKey
	if raw := strings.TrimSpace(req.BillItem); raw != "" {
		key, err := chargedomain.ParseItemKey(raw)
		if err != nil {
			return s.reject(ctx, log, cb, req.PatientID, err)
		}
		link = &key
	}

	existing, err := s.ledger.FindByGatewayPaymentID(ctx, s.db, cb.PaymentID)
	if err != nil {
		return ledgerdomain.PaymentRecord{}, err
	}
	if existing != nil {
		return s.reject(ctx, log, cb, req.PatientID, domain.ErrDuplicatePayment)
	}

	currency := s.defCurrency
	pending, err := s.orders.Get(ctx, cb.OrderID)
	if err != nil {
		log.Warn("pending order lookup failed", zap.Error(err))
		pending = nil
	}
	switch {
	case pending != nil:
		if pending.PatientID != patient.ID || !pending.Amount.Equal(amount) {
			log.Warn("callback does not match pending order",
				zap.String("claimed_amount", money.Format(amount)),
				zap.String("order_amount", money.Format(pending.Amount)),
			)
			return s.reject(ctx, log, cb, req.PatientID, domain.ErrOrderMismatch)
		}
		if pending.Currency != "" {
			currency = pending.Currency
		}
	case s.reconcile.Get().StrictOrders:
		return s.reject(ctx, log, cb, req.PatientID, domain.ErrOrderExpired)
	default:
		log.Warn("no pending order for callback, trusting claimed amount")
	}

	if link != nil {
		link, err = s.resolveLink(ctx, log, patient.ID, *link)
		if err != nil {
			return ledgerdomain.PaymentRecord{}, err
		}
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = ledgerdomain.DefaultDescription
	}

	now := s.clock.Now().UTC()
	ref := transactionRefPrefix + cb.PaymentID
	record := ledgerdomain.PaymentRecord{
		ID:               s.genID.Generate(),
		PatientID:        patient.ID,
		Amount:           amount,
		Currency:         currency,
		Method:           ledgerdomain.MethodOnline,
		PaidAt:           now,
		Description:      description,
		TransactionRef:   &ref,
		GatewayOrderID:   &cb.OrderID,
		GatewayPaymentID: &cb.PaymentID,
		GatewaySignature: &cb.Signature,
		CreatedAt:        now,
	}
	if link != nil {
		record.BillKind = link.Kind
		record.BillSourceID = &link.SourceID
	}

	inserted, err := s.ledger.Insert(ctx, s.db, &record)
	if err != nil {
		log.Error("failed to append payment", zap.Error(err))
		return ledgerdomain.PaymentRecord{}, err
	}
	if !inserted {
		return s.reject(ctx, log, cb, req.PatientID, domain.ErrDuplicatePayment)
	}

	if err := s.orders.Delete(ctx, cb.OrderID); err != nil {
		log.Warn("failed to consume pending order", zap.Error(err))
	}

	s.metrics.RecordSettlement(ctx, "recorded")
	s.audit(ctx, auditdomain.ActionPaymentSettled, record.ID.String(), cb, patient.ID, map[string]any{
		"amount":   money.Format(amount),
		"currency": currency,
	})
	log.Info("payment settled",
		zap.String("payment_id", record.ID.String()),
		zap.String("amount", money.Format(amount)),
	)
	return record, nil
}

// resolveLink drops a link naming an item the patient was never billed for.
// The gateway has already captured the money, so the payment is still
// recorded and left to heuristic matching.
func (s *Service) resolveLink(ctx context.Context, log *zap.Logger, patientID int64, key chargedomain.ItemKey) (*chargedomain.ItemKey, error) {
	items, err := s.charges.Synthesize(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if _, ok := chargedomain.FindItem(items, key); !ok {
		log.Warn("dropping bill link to unknown item", zap.String("bill_item", key.String()))
		return nil, nil
	}
	return &key, nil
}

func (s *Service) reject(ctx context.Context, log *zap.Logger, cb domain.Callback, patientID int64, reason error) (ledgerdomain.PaymentRecord, error) {
	outcome := outcomeFor(reason)
	s.metrics.RecordSettlement(ctx, outcome)
	s.audit(ctx, auditdomain.ActionPaymentRejected, cb.PaymentID, cb, patientID, map[string]any{
		"reason": outcome,
	})
	log.Warn("callback rejected", zap.String("reason", outcome))
	return ledgerdomain.PaymentRecord{}, reason
}

func (s *Service) audit(ctx context.Context, action, targetID string, cb domain.Callback, patientID int64, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata["gateway_order_id"] = cb.OrderID
	metadata["gateway_payment_id"] = cb.PaymentID
	metadata["patient_id"] = strconv.FormatInt(patientID, 10)
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Caller:     callercontext.Caller{},
		Action:     action,
		TargetType: "payment_record",
		TargetID:   targetID,
		Metadata:   metadata,
	})
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, domain.ErrInvalidCallback):
		return "invalid_callback"
	case errors.Is(err, domain.ErrPatientNotFound):
		return "patient_not_found"
	case errors.Is(err, domain.ErrDuplicatePayment):
		return "duplicate"
	case errors.Is(err, domain.ErrOrderMismatch):
		return "order_mismatch"
	case errors.Is(err, domain.ErrOrderExpired):
		return "order_expired"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "invalid_request"
	}
}
