package domain

import (
	"context"

	"github.com/smallbiznis/carebill/internal/callercontext"
)

const ContentType = "application/pdf"

type Receipt struct {
	Filename string
	Content  []byte
}

type Service interface {
	// Render produces the PDF receipt for a recorded payment.
	Render(ctx context.Context, caller callercontext.Caller, paymentID string) (Receipt, error)
}
