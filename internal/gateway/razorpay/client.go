package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/gateway/domain"
)

var errMissingOrderID = errors.New("razorpay response missing order id")

type Client struct {
	client *razorpay.Client
}

func New(cfg config.Config) domain.Client {
	return &Client{
		client: razorpay.NewClient(cfg.Gateway.KeyID, cfg.Gateway.KeySecret),
	}
}

// CreateOrder blocks until razorpay answers. The caller bounds it.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderResponse{}, err
	}

	data := map[string]interface{}{
		"amount":          req.AmountMinor,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"payment_capture": 1,
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for key, value := range req.Notes {
			notes[key] = value
		}
		data["notes"] = notes
	}

	body, err := c.client.Order.Create(data, nil)
	if err != nil {
		return domain.OrderResponse{}, fmt.Errorf("razorpay create order: %w", err)
	}

	id, _ := body["id"].(string)
	if strings.TrimSpace(id) == "" {
		return domain.OrderResponse{}, errMissingOrderID
	}
	status, _ := body["status"].(string)
	return domain.OrderResponse{ID: id, Status: status}, nil
}
