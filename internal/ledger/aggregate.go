package ledger

// AggregateDeposits sums deposit amounts keyed by (date, counterparty).
// Counterparties compare exactly and case-sensitively; the sum of the output
// always equals the sum of the input amounts.
func AggregateDeposits(deposits []Deposit) map[DepositKeyType]float64 {
	out := make(map[DepositKeyType]float64, len(deposits))
	for _, d := range deposits {
		out[DepositKey(d.Date, d.Counterparty)] += d.Amount
	}
	return out
}

// AggregateDebitNotes sums real-discount amounts keyed by date. Dates with
// no notes are simply absent and read as zero downstream.
func AggregateDebitNotes(notes []DebitNote) map[string]float64 {
	out := make(map[string]float64, len(notes))
	for _, n := range notes {
		out[DateKey(n.Date)] += n.RealDiscount
	}
	return out
}

// aggregateTotals sums delivery monetary totals per date, anchor excluded.
func aggregateTotals(deliveries []DeliveryRecord) map[string]float64 {
	out := make(map[string]float64, len(deliveries))
	for _, r := range deliveries {
		if r.IsAnchor() {
			continue
		}
		out[DateKey(r.Date)] += r.Total
	}
	return out
}

// LbsForDate sums converted pounds of all deliveries on the given date,
// anchor excluded. Debit-note creation snapshots this value.
func LbsForDate(deliveries []DeliveryRecord, date string) float64 {
	var lbs float64
	for _, r := range deliveries {
		if r.IsAnchor() || DateKey(r.Date) != date {
			continue
		}
		lbs += r.ConvertedQty
	}
	return lbs
}
