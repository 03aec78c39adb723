package ledger

// DailyNet merges per-date delivery totals, aggregated deposits and
// aggregated debit-note discounts into one net movement per calendar date:
//
//	net(d) = deposits(d) - totals(d) + discounts(d)
//
// The result covers the union of dates present in any source. A date that
// only has deposits, or only has notes, still appears; earlier revisions of
// this computation joined on delivery dates only and silently dropped such
// days.
func DailyNet(totals map[string]float64, deposits map[DepositKeyType]float64, discounts map[string]float64) map[string]float64 {
	net := make(map[string]float64, len(totals))

	for date, total := range totals {
		net[date] -= total
	}
	for key, amount := range deposits {
		net[key.Date] += amount
	}
	for date, discount := range discounts {
		net[date] += discount
	}
	return net
}
