package service_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	"github.com/smallbiznis/carebill/internal/reconcile/domain"
	"github.com/smallbiznis/carebill/internal/reconcile/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultOpts = domain.Options{StayMarkers: []string{"IPD"}, Location: time.UTC}

func visitItem(id int64, at time.Time, amount int64) chargedomain.BillItem {
	key := chargedomain.ItemKey{Kind: chargedomain.KindVisit, SourceID: id}
	return chargedomain.BillItem{
		Key:        key,
		Reference:  key.Reference(),
		PatientID:  1,
		IncurredAt: at,
		Amount:     decimal.NewFromInt(amount),
		Status:     chargedomain.StatusPending,
	}
}

func stayItem(id int64, at time.Time, amount int64) chargedomain.BillItem {
	key := chargedomain.ItemKey{Kind: chargedomain.KindStay, SourceID: id}
	return chargedomain.BillItem{
		Key:        key,
		Reference:  key.Reference(),
		PatientID:  1,
		IncurredAt: at,
		Amount:     decimal.NewFromInt(amount),
		Status:     chargedomain.StatusPending,
	}
}

func payment(id int64, at time.Time, amount int64, description string) ledgerdomain.PaymentRecord {
	return ledgerdomain.PaymentRecord{
		ID:          snowflake.ID(id),
		PatientID:   1,
		Amount:      decimal.NewFromInt(amount),
		Currency:    "INR",
		Method:      ledgerdomain.MethodCash,
		PaidAt:      at,
		Description: description,
	}
}

func day(d int, hour int) time.Time {
	return time.Date(2024, 1, d, hour, 0, 0, 0, time.UTC)
}

func TestReconcileVisitPaidSameDay(t *testing.T) {
	items := []chargedomain.BillItem{visitItem(1, day(10, 9), 500)}
	payments := []ledgerdomain.PaymentRecord{payment(100, day(10, 17), 500, "Bill Payment")}

	result := service.Reconcile(items, payments, nil, defaultOpts)

	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.True(t, item.Paid())
	assert.Equal(t, chargedomain.MatchedByHeuristic, item.MatchedBy)
	require.NotNil(t, item.MatchedPaymentID)
	assert.Equal(t, snowflake.ID(100), *item.MatchedPaymentID)
	assert.True(t, result.Totals.TotalPending.IsZero())
}

func TestReconcileVisitDifferentDayStaysPending(t *testing.T) {
	items := []chargedomain.BillItem{visitItem(1, day(10, 9), 500)}
	payments := []ledgerdomain.PaymentRecord{payment(100, day(11, 9), 500, "Bill Payment")}

	result := service.Reconcile(items, payments, nil, defaultOpts)

	assert.False(t, result.Items[0].Paid())
	assert.True(t, result.Totals.TotalPending.Equal(decimal.NewFromInt(500)))
	assert.True(t, result.Totals.TotalPaid.Equal(decimal.NewFromInt(500)))
}

func TestReconcileTwoEqualVisitsOnePayment(t *testing.T) {
	// visits arrive newest first, as the encounter repository lists them
	items := []chargedomain.BillItem{
		visitItem(2, day(10, 11), 500),
		visitItem(1, day(10, 9), 500),
	}
	payments := []ledgerdomain.PaymentRecord{payment(100, day(10, 12), 500, "")}

	result := service.Reconcile(items, payments, nil, defaultOpts)

	require.Len(t, result.Items, 2)
	assert.Equal(t, int64(2), result.Items[0].Key.SourceID)
	assert.True(t, result.Items[0].Paid())
	assert.Equal(t, int64(1), result.Items[1].Key.SourceID)
	assert.False(t, result.Items[1].Paid())
}

func TestReconcilePaymentConsumedOnce(t *testing.T) {
	items := []chargedomain.BillItem{
		visitItem(2, day(10, 11), 500),
		visitItem(1, day(10, 9), 500),
	}
	payments := []ledgerdomain.PaymentRecord{
		payment(100, day(10, 12), 500, ""),
		payment(101, day(10, 13), 500, ""),
	}

	result := service.Reconcile(items, payments, nil, defaultOpts)

	paidBy := map[int64]snowflake.ID{}
	for _, item := range result.Items {
		require.True(t, item.Paid())
		paidBy[item.Key.SourceID] = *item.MatchedPaymentID
	}
	// the pool is scanned newest first
	assert.Equal(t, snowflake.ID(101), paidBy[2])
	assert.Equal(t, snowflake.ID(100), paidBy[1])
}

func TestReconcileExplicitLinkTakesPrecedence(t *testing.T) {
	items := []chargedomain.BillItem{
		visitItem(1, day(10, 9), 500),
		visitItem(2, day(10, 11), 500),
	}
	linked := payment(100, day(10, 12), 500, "")
	sourceID := int64(2)
	linked.BillKind = chargedomain.KindVisit
	linked.BillSourceID = &sourceID

	result := service.Reconcile(items, []ledgerdomain.PaymentRecord{linked}, nil, defaultOpts)

	byID := map[int64]chargedomain.BillItem{}
	for _, item := range result.Items {
		byID[item.Key.SourceID] = item
	}
	assert.True(t, byID[2].Paid())
	assert.Equal(t, chargedomain.MatchedByLink, byID[2].MatchedBy)
	assert.False(t, byID[1].Paid())
}

func TestReconcileLinkToMissingItemFallsBackToHeuristic(t *testing.T) {
	items := []chargedomain.BillItem{visitItem(1, day(10, 9), 500)}
	linked := payment(100, day(10, 12), 500, "")
	sourceID := int64(999)
	linked.BillKind = chargedomain.KindVisit
	linked.BillSourceID = &sourceID

	result := service.Reconcile(items, []ledgerdomain.PaymentRecord{linked}, nil, defaultOpts)

	assert.True(t, result.Items[0].Paid())
	assert.Equal(t, chargedomain.MatchedByHeuristic, result.Items[0].MatchedBy)
	assert.True(t, result.Totals.TotalPending.IsZero())
}

func TestReconcileUnderpayingLinkLeavesItemPending(t *testing.T) {
	stay := stayItem(5, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), 3000)
	partial := payment(100, day(20, 9), 1, "")
	sourceID := int64(5)
	partial.BillKind = chargedomain.KindStay
	partial.BillSourceID = &sourceID

	result := service.Reconcile([]chargedomain.BillItem{stay}, []ledgerdomain.PaymentRecord{partial}, nil, defaultOpts)

	assert.False(t, result.Items[0].Paid())
	assert.Nil(t, result.Items[0].MatchedPaymentID)
	assert.True(t, result.Totals.TotalPending.Equal(decimal.NewFromInt(3000)))
	assert.True(t, result.Totals.TotalPaid.Equal(decimal.NewFromInt(1)))
}

func TestReconcileLinkToPaidItemFallsBackToHeuristic(t *testing.T) {
	// visits arrive newest first, as the encounter repository lists them
	items := []chargedomain.BillItem{
		visitItem(2, day(10, 11), 500),
		visitItem(1, day(10, 9), 500),
	}
	sourceID := int64(2)
	first := payment(100, day(10, 12), 500, "")
	first.BillKind = chargedomain.KindVisit
	first.BillSourceID = &sourceID
	second := payment(101, day(10, 13), 500, "")
	second.BillKind = chargedomain.KindVisit
	second.BillSourceID = &sourceID

	result := service.Reconcile(items, []ledgerdomain.PaymentRecord{first, second}, nil, defaultOpts)

	byID := map[int64]chargedomain.BillItem{}
	for _, item := range result.Items {
		byID[item.Key.SourceID] = item
	}
	require.True(t, byID[2].Paid())
	assert.Equal(t, snowflake.ID(101), *byID[2].MatchedPaymentID)
	assert.Equal(t, chargedomain.MatchedByLink, byID[2].MatchedBy)
	require.True(t, byID[1].Paid())
	assert.Equal(t, snowflake.ID(100), *byID[1].MatchedPaymentID)
	assert.Equal(t, chargedomain.MatchedByHeuristic, byID[1].MatchedBy)
}

func TestReconcileAllocationLinksLegacyPayment(t *testing.T) {
	items := []chargedomain.BillItem{
		visitItem(1, day(10, 9), 500),
		visitItem(2, day(10, 11), 500),
	}
	legacy := payment(100, day(10, 12), 500, "")
	allocations := []ledgerdomain.PaymentAllocation{{
		PaymentID:  100,
		PatientID:  1,
		SourceKind: chargedomain.KindVisit,
		SourceID:   2,
	}}

	result := service.Reconcile(items, []ledgerdomain.PaymentRecord{legacy}, allocations, defaultOpts)

	assert.True(t, result.Items[0].Paid())
	assert.Equal(t, int64(2), result.Items[0].Key.SourceID)
	assert.Equal(t, chargedomain.MatchedByLink, result.Items[0].MatchedBy)
	assert.False(t, result.Items[1].Paid())
}

func TestReconcileStayMarker(t *testing.T) {
	stay := stayItem(4, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), 3000)

	t.Run("legacy marker in description", func(t *testing.T) {
		payments := []ledgerdomain.PaymentRecord{payment(100, day(20, 9), 3000, "IPD Bill Payment")}
		result := service.Reconcile([]chargedomain.BillItem{stay}, payments, nil, defaultOpts)
		assert.True(t, result.Items[0].Paid())
	})

	t.Run("typed stay payment", func(t *testing.T) {
		p := payment(100, day(20, 9), 3000, "Bill Payment")
		p.BillKind = chargedomain.KindStay
		result := service.Reconcile([]chargedomain.BillItem{stay}, []ledgerdomain.PaymentRecord{p}, nil, defaultOpts)
		assert.True(t, result.Items[0].Paid())
	})

	t.Run("untagged payment does not match", func(t *testing.T) {
		payments := []ledgerdomain.PaymentRecord{payment(100, day(20, 9), 3000, "Bill Payment")}
		result := service.Reconcile([]chargedomain.BillItem{stay}, payments, nil, defaultOpts)
		assert.False(t, result.Items[0].Paid())
	})

	t.Run("configured marker", func(t *testing.T) {
		payments := []ledgerdomain.PaymentRecord{payment(100, day(20, 9), 3000, "WARD settlement")}
		opts := domain.Options{StayMarkers: []string{"WARD"}}
		result := service.Reconcile([]chargedomain.BillItem{stay}, payments, nil, opts)
		assert.True(t, result.Items[0].Paid())
	})
}

func TestReconcileSameDayUsesBillingTimezone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	items := []chargedomain.BillItem{visitItem(1, time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC), 500)}
	payments := []ledgerdomain.PaymentRecord{payment(100, time.Date(2024, 1, 10, 19, 0, 0, 0, time.UTC), 500, "")}

	utc := service.Reconcile(items, payments, nil, domain.Options{Location: time.UTC})
	assert.True(t, utc.Items[0].Paid())

	local := service.Reconcile(items, payments, nil, domain.Options{Location: ist})
	assert.False(t, local.Items[0].Paid())
}

func TestReconcileTotals(t *testing.T) {
	items := []chargedomain.BillItem{
		visitItem(1, day(10, 9), 500),
		stayItem(4, day(1, 9), 3000),
		visitItem(2, day(12, 9), 250),
	}
	payments := []ledgerdomain.PaymentRecord{
		payment(100, day(10, 10), 500, ""),
		payment(101, day(15, 10), 75, "advance"),
	}

	result := service.Reconcile(items, payments, nil, defaultOpts)

	assert.True(t, result.Totals.TotalBilled.Equal(decimal.NewFromInt(3750)))
	assert.True(t, result.Totals.TotalPaid.Equal(decimal.NewFromInt(575)))
	assert.True(t, result.Totals.TotalPending.Equal(decimal.NewFromInt(3250)))

	var pending decimal.Decimal
	for _, item := range result.Items {
		if !item.Paid() {
			pending = pending.Add(item.Amount)
		}
	}
	assert.True(t, pending.Equal(result.Totals.TotalPending))
}

func TestReconcileSortIsStableOnTies(t *testing.T) {
	at := day(10, 9)
	items := []chargedomain.BillItem{
		visitItem(1, at, 100),
		stayItem(2, at, 200),
		visitItem(3, day(11, 9), 300),
	}

	result := service.Reconcile(items, nil, nil, defaultOpts)

	require.Len(t, result.Items, 3)
	assert.Equal(t, int64(3), result.Items[0].Key.SourceID)
	assert.Equal(t, chargedomain.KindVisit, result.Items[1].Key.Kind)
	assert.Equal(t, chargedomain.KindStay, result.Items[2].Key.Kind)
	assert.True(t, result.Totals.TotalPaid.IsZero())
}
