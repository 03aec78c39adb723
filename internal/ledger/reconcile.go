package ledger

import (
	"fmt"
	"math"
	"sort"
)

// balanceTolerance absorbs float64 noise when verifying invariants.
const balanceTolerance = 1e-6

// Reconcile is the single entry point of the engine. It re-derives every
// computed field on the delivery records from the three collections and the
// initial-balance constant: per-record derived fields, attributed deposit
// amounts, per-day net movement and the cumulative running balance.
//
// The inputs are never mutated; the returned slice is a fresh copy sorted
// for display (date, then sequence). The call is stateless, idempotent and
// performs no I/O. Malformed records surface ErrValidation; a failed
// post-condition surfaces ErrConsistency and the result must be discarded.
func Reconcile(deliveries []DeliveryRecord, deposits []Deposit, notes []DebitNote, initial float64) ([]DeliveryRecord, error) {
	out := make([]DeliveryRecord, 0, len(deliveries))
	for _, rec := range deliveries {
		if rec.IsAnchor() {
			continue
		}
		derived, err := Derive(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d on %s: %w", rec.Seq, DateKey(rec.Date), err)
		}
		out = append(out, derived)
	}

	depositSums := AggregateDeposits(deposits)
	discountSums := AggregateDebitNotes(notes)
	net := DailyNet(aggregateTotals(out), depositSums, discountSums)
	balances := RunningBalances(net, initial)

	for i := range out {
		date := DateKey(out[i].Date)
		out[i].DepositAmount = depositSums[DepositKey(out[i].Date, out[i].Supplier)]
		out[i].DailyNet = net[date]
		out[i].Balance = balances[date]
	}

	anchor := Anchor(initial)
	if prev := findAnchor(deliveries); prev != nil {
		anchor.ID = prev.ID
		anchor.Date = prev.Date
	}
	out = append(out, anchor)
	SortDeliveries(out)

	if err := verify(out, deposits, notes, initial); err != nil {
		return nil, err
	}
	return out, nil
}

// BalanceSeries exposes the per-date net movement and cumulative balance,
// including dates that carry only deposits or only debit notes. This is the
// series the balance-evolution view and the cache consume.
func BalanceSeries(deliveries []DeliveryRecord, deposits []Deposit, notes []DebitNote, initial float64) ([]BalancePoint, error) {
	recs, err := Reconcile(deliveries, deposits, notes, initial)
	if err != nil {
		return nil, err
	}
	net := DailyNet(aggregateTotals(recs), AggregateDeposits(deposits), AggregateDebitNotes(notes))
	balances := RunningBalances(net, initial)

	dates := make([]string, 0, len(net))
	for date := range net {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	series := make([]BalancePoint, 0, len(dates))
	for _, date := range dates {
		day, perr := parseDateKey(date)
		if perr != nil {
			return nil, perr
		}
		series = append(series, BalancePoint{Date: day, Net: net[date], Balance: balances[date]})
	}
	return series, nil
}

func findAnchor(deliveries []DeliveryRecord) *DeliveryRecord {
	for i := range deliveries {
		if deliveries[i].IsAnchor() {
			return &deliveries[i]
		}
	}
	return nil
}

// verify checks the invariants that must hold after every reconciliation.
// A failure here is an engine defect, never something to correct silently.
func verify(out []DeliveryRecord, deposits []Deposit, notes []DebitNote, initial float64) error {
	var anchorSeen bool
	perDate := make(map[string]float64)
	var sumNet, sumDeposits, sumTotals, sumDiscounts float64

	for _, rec := range out {
		if rec.IsAnchor() {
			if anchorSeen {
				return fmt.Errorf("%w: multiple anchor records", ErrConsistency)
			}
			anchorSeen = true
			if math.Abs(rec.Balance-initial) > balanceTolerance {
				return fmt.Errorf("%w: anchor balance drifted from %.2f to %.2f", ErrConsistency, initial, rec.Balance)
			}
			continue
		}
		date := DateKey(rec.Date)
		if prev, ok := perDate[date]; ok {
			if math.Abs(prev-rec.Balance) > balanceTolerance {
				return fmt.Errorf("%w: records on %s disagree on end-of-day balance", ErrConsistency, date)
			}
		} else {
			perDate[date] = rec.Balance
		}
		sumTotals += rec.Total
	}
	if !anchorSeen {
		return fmt.Errorf("%w: anchor record missing", ErrConsistency)
	}

	for _, d := range deposits {
		sumDeposits += d.Amount
	}
	for _, n := range notes {
		sumDiscounts += n.RealDiscount
	}
	for _, v := range DailyNet(aggregateTotals(out), AggregateDeposits(deposits), AggregateDebitNotes(notes)) {
		sumNet += v
	}
	if math.Abs(sumNet-(sumDeposits-sumTotals+sumDiscounts)) > balanceTolerance {
		return fmt.Errorf("%w: net movements do not conserve totals", ErrConsistency)
	}
	return nil
}
