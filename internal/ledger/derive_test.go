package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveComputesFields(t *testing.T) {
	rec, err := Derive(sampleDelivery())
	require.NoError(t, err)
	require.InDelta(t, 80, rec.WeightDelta, 1e-9)
	require.InDelta(t, 80*LbsPerKg, rec.ConvertedQty, 1e-9)
	require.InDelta(t, 80*LbsPerKg/10, rec.Average, 1e-9)
	require.InDelta(t, 80*LbsPerKg*1.00, rec.Total, 1e-9)
}

func TestDeriveZeroQuantityYieldsZeroAverage(t *testing.T) {
	rec := sampleDelivery()
	rec.Qty = 0

	derived, err := Derive(rec)
	require.NoError(t, err)
	require.Zero(t, derived.Average)
	require.InDelta(t, 80*LbsPerKg, derived.ConvertedQty, 1e-9)
}

func TestDeriveRejectsInvalidInputs(t *testing.T) {
	cases := map[string]func(r *DeliveryRecord){
		"negative quantity":          func(r *DeliveryRecord) { r.Qty = -1 },
		"negative exit weight":       func(r *DeliveryRecord) { r.ExitWeight = -0.5 },
		"negative entry weight":      func(r *DeliveryRecord) { r.EntryWeight = -0.5 },
		"negative unit price":        func(r *DeliveryRecord) { r.UnitPrice = -0.01 },
		"negative crates":            func(r *DeliveryRecord) { r.Crates = -1 },
		"entry heavier than exit":    func(r *DeliveryRecord) { r.EntryWeight = r.ExitWeight + 1 },
		"no measurable content": func(r *DeliveryRecord) {
			r.Qty = 0
			r.ExitWeight = 0
			r.EntryWeight = 0
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			rec := sampleDelivery()
			mutate(&rec)
			_, err := Derive(rec)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDeriveSkipsAnchor(t *testing.T) {
	anchor := Anchor(testInitial)
	derived, err := Derive(anchor)
	require.NoError(t, err)
	require.Equal(t, anchor, derived)
}

func TestKindForAgency(t *testing.T) {
	require.Equal(t, DepositCash, KindForAgency("Cajero Automatico Pichincha"))
	require.Equal(t, DepositTransfer, KindForAgency("Banco Pichincha"))
}

func TestAggregateDepositsConservesTotal(t *testing.T) {
	deposits := []Deposit{
		{Date: day("2024-02-01"), Counterparty: "LIRIS SA", Amount: 10},
		{Date: day("2024-02-01"), Counterparty: "LIRIS SA", Amount: 15},
		{Date: day("2024-02-01"), Counterparty: "Medina", Amount: 7},
		{Date: day("2024-02-02"), Counterparty: "LIRIS SA", Amount: 3},
	}
	sums := AggregateDeposits(deposits)
	require.Len(t, sums, 3)
	require.InDelta(t, 25, sums[DepositKey(day("2024-02-01"), "LIRIS SA")], 1e-9)

	var total float64
	for _, v := range sums {
		total += v
	}
	require.InDelta(t, 35, total, 1e-9)
}

func TestAggregateDepositsCaseSensitive(t *testing.T) {
	deposits := []Deposit{
		{Date: day("2024-02-01"), Counterparty: "Medina", Amount: 5},
		{Date: day("2024-02-01"), Counterparty: "medina", Amount: 9},
	}
	sums := AggregateDeposits(deposits)
	require.Len(t, sums, 2)
}

func TestAggregateDepositsEmpty(t *testing.T) {
	require.Empty(t, AggregateDeposits(nil))
}

func TestAggregateDebitNotes(t *testing.T) {
	notes := []DebitNote{
		{Date: day("2024-02-01"), RealDiscount: 4},
		{Date: day("2024-02-01"), RealDiscount: 6},
		{Date: day("2024-02-03"), RealDiscount: 1},
	}
	sums := AggregateDebitNotes(notes)
	require.Len(t, sums, 2)
	require.InDelta(t, 10, sums["2024-02-01"], 1e-9)
	_, ok := sums["2024-02-02"]
	require.False(t, ok)
}

func TestDailyNetUnionOfDates(t *testing.T) {
	totals := map[string]float64{"2024-03-01": 100}
	deposits := map[DepositKeyType]float64{{Date: "2024-03-02", Party: "Medina"}: 40}
	discounts := map[string]float64{"2024-03-03": 5}

	net := DailyNet(totals, deposits, discounts)
	require.Len(t, net, 3)
	require.InDelta(t, -100, net["2024-03-01"], 1e-9)
	require.InDelta(t, 40, net["2024-03-02"], 1e-9)
	require.InDelta(t, 5, net["2024-03-03"], 1e-9)
}

func TestRunningBalances(t *testing.T) {
	net := map[string]float64{
		"2024-03-02": 40,
		"2024-03-01": -100,
	}
	balances := RunningBalances(net, 10)
	require.InDelta(t, -90, balances["2024-03-01"], 1e-9)
	require.InDelta(t, -50, balances["2024-03-02"], 1e-9)
}

func TestRunningBalancesEmpty(t *testing.T) {
	require.Empty(t, RunningBalances(nil, testInitial))
}

func TestLbsForDate(t *testing.T) {
	recs, err := Reconcile([]DeliveryRecord{sampleDelivery()}, nil, nil, testInitial)
	require.NoError(t, err)
	require.InDelta(t, 80*LbsPerKg, LbsForDate(recs, "2024-01-10"), 1e-9)
	require.Zero(t, LbsForDate(recs, "2024-01-11"))
}
