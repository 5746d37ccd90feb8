package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Kind is the encounter type a bill item was synthesized from. Payments
// carry the same tag so they can be matched to the right kind of item.
type Kind string

const (
	KindVisit Kind = "visit"
	KindStay  Kind = "stay"
)

var ErrInvalidItemKey = errors.New("invalid_bill_item")

func ParseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindVisit:
		return KindVisit, true
	case KindStay:
		return KindStay, true
	default:
		return "", false
	}
}

// ItemKey identifies a bill item by its source record.
type ItemKey struct {
	Kind     Kind  `json:"kind"`
	SourceID int64 `json:"source_id"`
}

func (k ItemKey) String() string {
	return string(k.Kind) + ":" + strconv.FormatInt(k.SourceID, 10)
}

// Reference is the display reference shown to patients and staff.
func (k ItemKey) Reference() string {
	switch k.Kind {
	case KindStay:
		return fmt.Sprintf("IPD-%d", k.SourceID)
	default:
		return fmt.Sprintf("OPD-%d", k.SourceID)
	}
}

// ParseItemKey accepts "visit:12" / "stay:4" as well as the display
// references "OPD-12" / "IPD-4".
func ParseItemKey(raw string) (ItemKey, error) {
	raw = strings.TrimSpace(raw)
	var kindPart, idPart string
	switch {
	case strings.Contains(raw, ":"):
		kindPart, idPart, _ = strings.Cut(raw, ":")
	case strings.HasPrefix(strings.ToUpper(raw), "OPD-"):
		kindPart, idPart = string(KindVisit), raw[4:]
	case strings.HasPrefix(strings.ToUpper(raw), "IPD-"):
		kindPart, idPart = string(KindStay), raw[4:]
	default:
		return ItemKey{}, ErrInvalidItemKey
	}

	kind, ok := ParseKind(kindPart)
	if !ok {
		return ItemKey{}, ErrInvalidItemKey
	}
	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil || id <= 0 {
		return ItemKey{}, ErrInvalidItemKey
	}
	return ItemKey{Kind: kind, SourceID: id}, nil
}

type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
)

// MatchSource records how a paid item was settled.
type MatchSource string

const (
	MatchedByLink      MatchSource = "link"
	MatchedByHeuristic MatchSource = "heuristic"
)

// BillItem is derived on demand and never persisted.
type BillItem struct {
	Key              ItemKey         `json:"key"`
	Reference        string          `json:"reference"`
	PatientID        int64           `json:"patient_id"`
	IncurredAt       time.Time       `json:"incurred_at"`
	Description      string          `json:"description"`
	Amount           decimal.Decimal `json:"amount"`
	BillableDays     int             `json:"billable_days,omitempty"`
	Status           Status          `json:"status"`
	MatchedPaymentID *snowflake.ID   `json:"matched_payment_id,omitempty"`
	MatchedBy        MatchSource     `json:"matched_by,omitempty"`
}

func (b BillItem) Paid() bool {
	return b.Status == StatusPaid
}

// FindItem returns the item with the given key.
func FindItem(items []BillItem, key ItemKey) (BillItem, bool) {
	for _, item := range items {
		if item.Key == key {
			return item, true
		}
	}
	return BillItem{}, false
}
