package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/callercontext"
	"github.com/smallbiznis/carebill/internal/config"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	"github.com/smallbiznis/carebill/internal/providers/pdf"
	"github.com/smallbiznis/carebill/internal/receipt/domain"
	"github.com/smallbiznis/carebill/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const paidAtLayout = "02 Jan 2006 15:04 MST"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Ledger     ledgerdomain.Repository
	Encounters encounterdomain.Repository
	Authz      authorization.Service
	PDF        pdf.Provider
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	billing    config.BillingConfig
	ledger     ledgerdomain.Repository
	encounters encounterdomain.Repository
	authz      authorization.Service
	pdf        pdf.Provider
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("receipt.service"),
		billing:    p.Cfg.Billing,
		ledger:     p.Ledger,
		encounters: p.Encounters,
		authz:      p.Authz,
		pdf:        p.PDF,
	}
}

func (s *Service) Render(ctx context.Context, caller callercontext.Caller, paymentID string) (domain.Receipt, error) {
	if err := s.authz.Authorize(ctx, caller, authorization.ObjectReceipt, authorization.ActionReceiptView); err != nil {
		return domain.Receipt{}, err
	}

	id, err := snowflake.ParseString(strings.TrimSpace(paymentID))
	if err != nil || id == 0 {
		return domain.Receipt{}, ledgerdomain.ErrInvalidID
	}

	record, err := s.ledger.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	if record == nil || !caller.CanAccessPatient(record.PatientID) {
		return domain.Receipt{}, ledgerdomain.ErrNotFound
	}

	patient, err := s.encounters.FindPatient(ctx, s.db, record.PatientID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if patient == nil {
		return domain.Receipt{}, encounterdomain.ErrPatientNotFound
	}

	content, err := s.pdf.GenerateReceipt(ctx, s.receiptData(*record, *patient))
	if err != nil {
		s.log.Error("render receipt failed", zap.String("payment_id", record.ID.String()), zap.Error(err))
		return domain.Receipt{}, err
	}

	return domain.Receipt{
		Filename: Filename(patient.FullName, record.ID),
		Content:  content,
	}, nil
}

func (s *Service) receiptData(record ledgerdomain.PaymentRecord, patient encounterdomain.Patient) pdf.ReceiptData {
	data := pdf.ReceiptData{
		ClinicName:     s.billing.ClinicName,
		ReceiptNumber:  record.ID.String(),
		PatientName:    patient.FullName,
		PatientPhone:   patient.Phone,
		PatientAddress: patient.Address,
		PaidAt:         record.PaidAt.In(s.billing.Location()).Format(paidAtLayout),
		Method:         string(record.Method),
		Amount:         record.Currency + " " + money.Format(record.Amount),
		Description:    record.Description,
	}
	if record.TransactionRef != nil {
		data.TransactionRef = *record.TransactionRef
	}
	if link := record.Link(); link != nil {
		data.BillItem = link.Reference()
	}
	return data
}

// Filename is the download name of a receipt, e.g. receipt-asha-rao-1700000000000000001.pdf.
func Filename(patientName string, paymentID snowflake.ID) string {
	name := strings.TrimSpace(patientName)
	if name == "" {
		name = "patient"
	}
	return slug.Make(fmt.Sprintf("receipt-%s-%s", name, paymentID.String())) + ".pdf"
}
