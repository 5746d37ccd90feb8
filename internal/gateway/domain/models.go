package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/callercontext"
	"github.com/smallbiznis/carebill/pkg/money"
)

// GatewayOrder is the checkout payload handed to the client. Nothing about
// it is authoritative until the signed callback arrives.
type GatewayOrder struct {
	OrderID        string          `json:"order_id"`
	Amount         decimal.Decimal `json:"amount"`
	AmountMinor    int64           `json:"amount_minor"`
	Currency       string          `json:"currency"`
	Receipt        string          `json:"receipt"`
	PaymentCapture int             `json:"payment_capture"`
	KeyID          string          `json:"key_id"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// PendingOrder remembers who an order was created for and for how much.
type PendingOrder struct {
	OrderID   string          `json:"order_id"`
	PatientID int64           `json:"patient_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Receipt   string          `json:"receipt"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

type OrderResponse struct {
	ID     string
	Status string
}

// Client creates orders at the payment gateway.
type Client interface {
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
}

// OrderStore keeps pending orders until they expire or are settled.
// Get returns nil, nil for unknown or expired orders.
type OrderStore interface {
	Save(ctx context.Context, order PendingOrder, ttl time.Duration) error
	Get(ctx context.Context, orderID string) (*PendingOrder, error)
	Delete(ctx context.Context, orderID string) error
}

type Service interface {
	CreateOrder(ctx context.Context, caller callercontext.Caller, amount string, currency string) (GatewayOrder, error)
}

var (
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrInvalidAmount      = money.ErrInvalidAmount
	ErrInvalidCurrency    = money.ErrInvalidCurrency
)
