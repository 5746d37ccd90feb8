package service

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
	chargeservice "github.com/smallbiznis/carebill/internal/charge/service"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	"github.com/smallbiznis/carebill/internal/reconcile/domain"
)

// Reconcile marks which bill items are paid.
//
// A payment carrying a bill link (on the record or through an allocation)
// settles exactly that item when it covers the item's amount and the item
// is still unpaid. Every other payment, including links to unknown items
// and partial payments, joins a pool scanned newest first; each pending
// item, in input order, takes the first pool payment that satisfies its
// rule and removes it from the pool. Unmatched items stay pending.
func Reconcile(items []chargedomain.BillItem, payments []ledgerdomain.PaymentRecord, allocations []ledgerdomain.PaymentAllocation, opts domain.Options) domain.Result {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	out := make([]chargedomain.BillItem, len(items))
	byKey := make(map[chargedomain.ItemKey]int, len(items))
	for i, item := range items {
		item.Status = chargedomain.StatusPending
		item.MatchedPaymentID = nil
		item.MatchedBy = ""
		out[i] = item
		if _, seen := byKey[item.Key]; !seen {
			byKey[item.Key] = i
		}
	}

	ledger := make([]ledgerdomain.PaymentRecord, len(payments))
	copy(ledger, payments)
	sort.SliceStable(ledger, func(i, j int) bool {
		if !ledger[i].PaidAt.Equal(ledger[j].PaidAt) {
			return ledger[i].PaidAt.After(ledger[j].PaidAt)
		}
		return ledger[i].ID > ledger[j].ID
	})

	allocated := make(map[int64]chargedomain.ItemKey, len(allocations))
	for _, allocation := range allocations {
		allocated[int64(allocation.PaymentID)] = allocation.Key()
	}

	pool := make([]*ledgerdomain.PaymentRecord, 0, len(ledger))
	for i := range ledger {
		payment := &ledger[i]
		if idx, ok := linkedItem(out, byKey, payment, allocated); ok {
			settle(&out[idx], payment, chargedomain.MatchedByLink)
			continue
		}
		pool = append(pool, payment)
	}

	for i := range out {
		if out[i].Paid() {
			continue
		}
		for j, payment := range pool {
			if !matches(out[i], payment, opts.StayMarkers, loc) {
				continue
			}
			settle(&out[i], payment, chargedomain.MatchedByHeuristic)
			pool = append(pool[:j], pool[j+1:]...)
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IncurredAt.After(out[j].IncurredAt)
	})

	return domain.Result{Items: out, Totals: totals(out, ledger)}
}

// linkedItem returns the index of the unpaid item a payment's link names,
// provided the payment covers the item's full amount.
func linkedItem(items []chargedomain.BillItem, byKey map[chargedomain.ItemKey]int, payment *ledgerdomain.PaymentRecord, allocated map[int64]chargedomain.ItemKey) (int, bool) {
	key, linked := linkOf(payment, allocated)
	if !linked {
		return 0, false
	}
	idx, ok := byKey[key]
	if !ok || items[idx].Paid() || !payment.Amount.Equal(items[idx].Amount) {
		return 0, false
	}
	return idx, true
}

func linkOf(payment *ledgerdomain.PaymentRecord, allocated map[int64]chargedomain.ItemKey) (chargedomain.ItemKey, bool) {
	if link := payment.Link(); link != nil {
		return *link, true
	}
	key, ok := allocated[int64(payment.ID)]
	return key, ok
}

func matches(item chargedomain.BillItem, payment *ledgerdomain.PaymentRecord, stayMarkers []string, loc *time.Location) bool {
	if !payment.Amount.Equal(item.Amount) {
		return false
	}
	switch item.Key.Kind {
	case chargedomain.KindVisit:
		return chargeservice.SameCalendarDay(item.IncurredAt, payment.PaidAt, loc)
	case chargedomain.KindStay:
		return payment.BillKind == chargedomain.KindStay || hasMarker(payment.Description, stayMarkers)
	default:
		return false
	}
}

func hasMarker(description string, markers []string) bool {
	for _, marker := range markers {
		if marker = strings.TrimSpace(marker); marker == "" {
			continue
		}
		if strings.Contains(description, marker) {
			return true
		}
	}
	return false
}

func settle(item *chargedomain.BillItem, payment *ledgerdomain.PaymentRecord, by chargedomain.MatchSource) {
	id := payment.ID
	item.Status = chargedomain.StatusPaid
	item.MatchedPaymentID = &id
	item.MatchedBy = by
}

// totals sums every payment on the ledger as paid, matched or not.
func totals(items []chargedomain.BillItem, payments []ledgerdomain.PaymentRecord) domain.Totals {
	t := domain.Totals{
		TotalBilled:  decimal.Zero,
		TotalPaid:    decimal.Zero,
		TotalPending: decimal.Zero,
	}
	for _, item := range items {
		t.TotalBilled = t.TotalBilled.Add(item.Amount)
		if !item.Paid() {
			t.TotalPending = t.TotalPending.Add(item.Amount)
		}
	}
	for _, payment := range payments {
		t.TotalPaid = t.TotalPaid.Add(payment.Amount)
	}
	return t
}
