package ledger

import "sort"

// RunningBalances orders the distinct dates of the net-movement map
// chronologically and computes the cumulative balance per date, anchored at
// the initial constant. Every record of a date receives that date's terminal
// balance, so the per-date value is all this stage needs to produce.
//
// With no activity at all the result is empty and the only balance in the
// system is the anchor's initial constant.
func RunningBalances(net map[string]float64, initial float64) map[string]float64 {
	dates := make([]string, 0, len(net))
	for date := range net {
		dates = append(dates, date)
	}
	// Keys are ISO dates, so lexicographic order is chronological order.
	sort.Strings(dates)

	balances := make(map[string]float64, len(net))
	running := initial
	for _, date := range dates {
		running += net[date]
		balances[date] = running
	}
	return balances
}

// SortDeliveries orders records for display: by date ascending, then by
// sequence number ascending. The anchor's 1900 date keeps it first.
func SortDeliveries(deliveries []DeliveryRecord) {
	sort.SliceStable(deliveries, func(i, j int) bool {
		di, dj := DateKey(deliveries[i].Date), DateKey(deliveries[j].Date)
		if di != dj {
			return di < dj
		}
		return deliveries[i].Seq < deliveries[j].Seq
	})
}
