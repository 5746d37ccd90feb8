package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/callercontext"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	"github.com/smallbiznis/carebill/internal/ledger/domain"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"github.com/smallbiznis/carebill/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxDescriptionLength = 255

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       domain.Repository
	Encounters encounterdomain.Repository
	Charges    chargedomain.Service
	Authz      authorization.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	Metrics    *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	defCurrency string
	repo        domain.Repository
	encounters  encounterdomain.Repository
	charges     chargedomain.Service
	authz       authorization.Service
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		defCurrency: p.Cfg.Gateway.DefaultCurrency,
		repo:        p.Repo,
		encounters:  p.Encounters,
		charges:     p.Charges,
		authz:       p.Authz,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

// resolveLink rejects links to items the patient was never billed for.
func (s *Service) resolveLink(ctx context.Context, patientID int64, key chargedomain.ItemKey) error {
	items, err := s.charges.Synthesize(ctx, patientID)
	if err != nil {
		return err
	}
	if _, ok := chargedomain.FindItem(items, key); !ok {
		return fmt.Errorf("%w: %s", chargedomain.ErrInvalidItemKey, key)
	}
	return nil
}

func (s *Service) RecordManual(ctx context.Context, caller callercontext.Caller, req domain.ManualPaymentRequest) (domain.PaymentRecord, error) {
	if err := s.authz.Authorize(ctx, caller, authorization.ObjectPayment, authorization.ActionPaymentRecord); err != nil {
		return domain.PaymentRecord{}, err
	}

	method, ok := domain.ParseMethod(strings.TrimSpace(req.Method))
	if !ok || method == domain.MethodOnline {
		return domain.PaymentRecord{}, domain.ErrInvalidMethod
	}
	if req.PatientID <= 0 {
		return domain.PaymentRecord{}, domain.ErrInvalidPatient
	}

	amount, err := money.ParsePositive(req.Amount)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	currency, err := money.NormalizeCurrency(req.Currency, s.defCurrency)
	if err != nil {
		return domain.PaymentRecord{}, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = domain.DefaultDescription
	}
	if len(description) > maxDescriptionLength {
		return domain.PaymentRecord{}, domain.ErrDescriptionLength
	}

	var link *chargedomain.ItemKey
	if raw := strings.TrimSpace(req.BillItem); raw != "" {
		key, err := chargedomain.ParseItemKey(raw)
		if err != nil {
			return domain.PaymentRecord{}, err
		}
		link = &key
	}

	patient, err := s.encounters.FindPatient(ctx, s.db, req.PatientID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	if patient == nil {
		return domain.PaymentRecord{}, encounterdomain.ErrPatientNotFound
	}
	if link != nil {
		if err := s.resolveLink(ctx, patient.ID, *link); err != nil {
			return domain.PaymentRecord{}, err
		}
	}

	now := s.clock.Now().UTC()
	record := domain.PaymentRecord{
		ID:          s.genID.Generate(),
		PatientID:   patient.ID,
		Amount:      amount,
		Currency:    currency,
		Method:      method,
		PaidAt:      now,
		Description: description,
		CreatedAt:   now,
	}
	if ref := strings.TrimSpace(req.TransactionRef); ref != "" {
		record.TransactionRef = &ref
	}
	if link != nil {
		record.BillKind = link.Kind
		record.BillSourceID = &link.SourceID
	}

	if _, err := s.repo.Insert(ctx, s.db, &record); err != nil {
		s.log.Error("failed to record manual payment", zap.Int64("patient_id", patient.ID), zap.Error(err))
		return domain.PaymentRecord{}, err
	}

	s.metrics.RecordManualPayment(ctx, string(method))
	s.audit(ctx, caller, record)

	s.log.Info("manual payment recorded",
		zap.String("payment_id", record.ID.String()),
		zap.String("method", string(method)),
		zap.String("amount", money.Format(amount)),
	)
	return record, nil
}

func (s *Service) Get(ctx context.Context, caller callercontext.Caller, id string) (domain.PaymentRecord, error) {
	if err := s.authz.Authorize(ctx, caller, authorization.ObjectPayment, authorization.ActionPaymentView); err != nil {
		return domain.PaymentRecord{}, err
	}

	paymentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || paymentID == 0 {
		return domain.PaymentRecord{}, domain.ErrInvalidID
	}

	record, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	if record == nil || !caller.CanAccessPatient(record.PatientID) {
		return domain.PaymentRecord{}, domain.ErrNotFound
	}
	return *record, nil
}

func (s *Service) List(ctx context.Context, caller callercontext.Caller, req domain.ListPaymentsRequest) (domain.ListPaymentsResponse, error) {
	if err := s.authz.Authorize(ctx, caller, authorization.ObjectPayment, authorization.ActionPaymentView); err != nil {
		return domain.ListPaymentsResponse{}, err
	}

	patientID := req.PatientID
	if caller.Role == callercontext.RolePatient {
		if patientID == nil {
			own := caller.PatientID
			patientID = &own
		}
		if !caller.CanAccessPatient(*patientID) {
			return domain.ListPaymentsResponse{}, authorization.ErrForbidden
		}
	}
	if patientID != nil && *patientID <= 0 {
		return domain.ListPaymentsResponse{}, domain.ErrInvalidPatient
	}

	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ListPaymentsResponse{}, domain.ErrInvalidTimeRange
	}

	var cursor *domain.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListPaymentsResponse{}, domain.ErrInvalidPageToken
		}
		paidAt, err := time.Parse(time.RFC3339Nano, decoded.At)
		if err != nil {
			return domain.ListPaymentsResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return domain.ListPaymentsResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.Cursor{ID: id, PaidAt: paidAt}
	}

	pageSize := pagination.NormalizeSize(req.PageSize)
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		PatientID: patientID,
		From:      req.From,
		To:        req.To,
		Cursor:    cursor,
		Limit:     pageSize,
	})
	if err != nil {
		return domain.ListPaymentsResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.PaymentRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: item.ID.String(),
			At: item.PaidAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	payments := make([]domain.PaymentRecord, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}

	return domain.ListPaymentsResponse{PageInfo: pageInfo, Payments: payments}, nil
}

func (s *Service) audit(ctx context.Context, caller callercontext.Caller, record domain.PaymentRecord) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"patient_id": strconv.FormatInt(record.PatientID, 10),
		"amount":     money.Format(record.Amount),
		"currency":   record.Currency,
		"method":     string(record.Method),
	}
	if record.TransactionRef != nil {
		metadata["transaction_ref"] = *record.TransactionRef
	}
	if link := record.Link(); link != nil {
		metadata["bill_item"] = link.String()
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Caller:     caller,
		Action:     auditdomain.ActionManualPaymentRecorded,
		TargetType: "payment_record",
		TargetID:   record.ID.String(),
		Metadata:   metadata,
	})
}
