package domain

import "context"

type Service interface {
	// Synthesize builds the unreconciled bill items for a patient.
	Synthesize(ctx context.Context, patientID int64) ([]BillItem, error)
}
