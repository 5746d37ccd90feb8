package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	settlementdomain "github.com/smallbiznis/carebill/internal/settlement/domain"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"go.uber.org/zap"
)

// Amounts are accepted as JSON numbers or strings.
type createPaymentOrderRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (s *Server) CreatePaymentOrder(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createPaymentOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.gatewaySvc.CreateOrder(c.Request.Context(), caller, req.Amount.String(), strings.TrimSpace(req.Currency))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

type paymentCallbackRequest struct {
	PaymentID   string          `json:"razorpay_payment_id"`
	OrderID     string          `json:"razorpay_order_id"`
	Signature   string          `json:"razorpay_signature"`
	PatientID   int64           `json:"patient_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	BillItem    string          `json:"bill_item"`
}

func (s *Server) PaymentCallback(c *gin.Context) {
	var req paymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	paymentID := strings.TrimSpace(req.PaymentID)
	if s.limiter != nil && paymentID != "" {
		ctx := c.Request.Context()
		token, locked, err := s.limiter.TryLockCallback(ctx, paymentID)
		switch {
		case err != nil:
			s.log.Warn("callback lock unavailable", zap.String("gateway_payment_id", paymentID), zap.Error(err))
		case !locked:
			AbortWithError(c, ErrConflict)
			return
		default:
			defer func() {
				if err := s.limiter.ReleaseCallback(context.WithoutCancel(ctx), paymentID, token); err != nil {
					s.log.Warn("release callback lock failed", zap.String("gateway_payment_id", paymentID), zap.Error(err))
				}
			}()
		}
	}

	record, err := s.settlementSvc.SettlePayment(c.Request.Context(), settlementdomain.SettleRequest{
		Callback: settlementdomain.Callback{
			PaymentID: paymentID,
			OrderID:   strings.TrimSpace(req.OrderID),
			Signature: strings.TrimSpace(req.Signature),
		},
		PatientID:     req.PatientID,
		ClaimedAmount: req.Amount.String(),
		Description:   strings.TrimSpace(req.Description),
		BillItem:      strings.TrimSpace(req.BillItem),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "payment": record})
}

type manualPaymentRequest struct {
	PatientID      int64           `json:"patient_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Method         string          `json:"method"`
	Description    string          `json:"description"`
	TransactionRef string          `json:"transaction_ref"`
	BillItem       string          `json:"bill_item"`
}

func (s *Server) RecordManualPayment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req manualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.ledgerSvc.RecordManual(c.Request.Context(), caller, ledgerdomain.ManualPaymentRequest{
		PatientID:      req.PatientID,
		Amount:         req.Amount.String(),
		Currency:       strings.TrimSpace(req.Currency),
		Method:         strings.TrimSpace(req.Method),
		Description:    strings.TrimSpace(req.Description),
		TransactionRef: strings.TrimSpace(req.TransactionRef),
		BillItem:       strings.TrimSpace(req.BillItem),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": record})
}

func (s *Server) ListPayments(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query struct {
		pagination.Pagination
		PatientID string `form:"patient_id"`
		From      string `form:"from"`
		To        string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	patientID, err := parseOptionalInt64(query.PatientID)
	if err != nil {
		AbortWithError(c, newValidationError("patient_id", "invalid_patient_id", "invalid patient_id"))
		return
	}

	loc := s.cfg.Billing.Location()
	from, err := parseOptionalTime(query.From, false, loc)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true, loc)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), caller, ledgerdomain.ListPaymentsRequest{
		Pagination: query.Pagination,
		PatientID:  patientID,
		From:       from,
		To:         to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	record, err := s.ledgerSvc.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}
