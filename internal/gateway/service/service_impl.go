package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/callercontext"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/gateway/domain"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	"github.com/smallbiznis/carebill/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultPendingTTL = 30 * time.Minute
	paymentCapture    = 1
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Clock   clock.Clock
	Client  domain.Client
	Store   domain.OrderStore
	Authz   authorization.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	clock       clock.Clock
	client      domain.Client
	store       domain.OrderStore
	authz       authorization.Service
	metrics     *metrics.Metrics
	keyID       string
	defCurrency string
	timeout     time.Duration
	pendingTTL  time.Duration
}

func NewService(p Params) domain.Service {
	timeout := p.Cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ttl := p.Cfg.Gateway.PendingOrderTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &Service{
		log:         p.Log.Named("gateway.service"),
		clock:       p.Clock,
		client:      p.Client,
		store:       p.Store,
		authz:       p.Authz,
		metrics:     p.Metrics,
		keyID:       p.Cfg.Gateway.KeyID,
		defCurrency: p.Cfg.Gateway.DefaultCurrency,
		timeout:     timeout,
		pendingTTL:  ttl,
	}
}

func (s *Service) CreateOrder(ctx context.Context, caller callercontext.Caller, amount string, currency string) (domain.GatewayOrder, error) {
	if err := s.authz.Authorize(ctx, caller, authorization.ObjectPaymentOrder, authorization.ActionPaymentOrderCreate); err != nil {
		return domain.GatewayOrder{}, err
	}

	value, err := money.ParsePositive(amount)
	if err != nil {
		s.metrics.RecordGatewayOrder(ctx, "invalid_amount")
		return domain.GatewayOrder{}, domain.ErrInvalidAmount
	}
	code, err := money.NormalizeCurrency(currency, s.defCurrency)
	if err != nil {
		s.metrics.RecordGatewayOrder(ctx, "invalid_currency")
		return domain.GatewayOrder{}, domain.ErrInvalidCurrency
	}

	req := domain.OrderRequest{
		AmountMinor: money.MinorUnits(value),
		Currency:    code,
		Receipt:     ulid.Make().String(),
		Notes: map[string]string{
			"patient_id": strconv.FormatInt(caller.PatientID, 10),
		},
	}

	resp, err := s.callGateway(ctx, req)
	if err != nil {
		s.metrics.RecordGatewayOrder(ctx, "unavailable")
		s.log.Warn("gateway order failed",
			zap.String("receipt", req.Receipt),
			zap.Int64("amount_minor", req.AmountMinor),
			zap.Error(err),
		)
		return domain.GatewayOrder{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	now := s.clock.Now().UTC()
	order := domain.GatewayOrder{
		OrderID:        resp.ID,
		Amount:         value,
		AmountMinor:    req.AmountMinor,
		Currency:       code,
		Receipt:        req.Receipt,
		PaymentCapture: paymentCapture,
		KeyID:          s.keyID,
		ExpiresAt:      now.Add(s.pendingTTL),
	}

	pending := domain.PendingOrder{
		OrderID:   order.OrderID,
		PatientID: caller.PatientID,
		Amount:    value,
		Currency:  code,
		Receipt:   order.Receipt,
		CreatedAt: now,
		ExpiresAt: order.ExpiresAt,
	}
	if err := s.store.Save(ctx, pending, s.pendingTTL); err != nil {
		s.log.Warn("failed to save pending order",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
	}

	s.metrics.RecordGatewayOrder(ctx, "created")
	s.log.Info("gateway order created",
		zap.String("order_id", order.OrderID),
		zap.String("receipt", order.Receipt),
		zap.Int64("amount_minor", order.AmountMinor),
		zap.String("currency", order.Currency),
	)
	return order, nil
}

var errEmptyOrderID = errors.New("gateway returned an empty order id")

type gatewayResult struct {
	resp domain.OrderResponse
	err  error
}

// callGateway bounds a client call that may not honour ctx itself.
func (s *Service) callGateway(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan gatewayResult, 1)
	go func() {
		resp, err := s.client.CreateOrder(ctx, req)
		done <- gatewayResult{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return domain.OrderResponse{}, ctx.Err()
	case result := <-done:
		if result.err != nil {
			return domain.OrderResponse{}, result.err
		}
		if result.resp.ID == "" {
			return domain.OrderResponse{}, errEmptyOrderID
		}
		return result.resp, nil
	}
}
