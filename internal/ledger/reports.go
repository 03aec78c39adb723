package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SupplierTotal is one row of the totals-by-supplier report.
type SupplierTotal struct {
	Supplier Party
	Total    float64
}

// PeriodReport groups reconciled records for one reporting window.
type PeriodReport struct {
	Label   string
	From    time.Time
	To      time.Time
	Records []DeliveryRecord
}

// WeeklyReport returns the reconciled records of the most recent ISO week
// present in the data, anchor excluded.
func (s *Service) WeeklyReport(ctx context.Context) (PeriodReport, error) {
	view, err := s.Ledger(ctx)
	if err != nil {
		return PeriodReport{}, err
	}

	var latest string
	weeks := make(map[string][]DeliveryRecord)
	for _, rec := range view.Deliveries {
		if rec.IsAnchor() {
			continue
		}
		year, week := rec.Date.ISOWeek()
		key := fmt.Sprintf("%04d-W%02d", year, week)
		weeks[key] = append(weeks[key], rec)
		if key > latest {
			latest = key
		}
	}
	if latest == "" {
		return PeriodReport{}, nil
	}

	records := weeks[latest]
	report := PeriodReport{Label: latest, Records: records}
	report.From, report.To = dateSpan(records)
	return report, nil
}

// MonthlyReport returns the reconciled records of the given month.
func (s *Service) MonthlyReport(ctx context.Context, year int, month time.Month) (PeriodReport, error) {
	view, err := s.Ledger(ctx)
	if err != nil {
		return PeriodReport{}, err
	}

	var records []DeliveryRecord
	for _, rec := range view.Deliveries {
		if rec.IsAnchor() {
			continue
		}
		if rec.Date.Year() == year && rec.Date.Month() == month {
			records = append(records, rec)
		}
	}
	report := PeriodReport{Label: fmt.Sprintf("%04d-%02d", year, int(month)), Records: records}
	report.From, report.To = dateSpan(records)
	return report, nil
}

// SupplierTotals sums delivery totals per supplier, largest first. This is
// the dataset behind the per-supplier breakdown view.
func (s *Service) SupplierTotals(ctx context.Context) ([]SupplierTotal, error) {
	view, err := s.Ledger(ctx)
	if err != nil {
		return nil, err
	}

	sums := make(map[Party]float64)
	for _, rec := range view.Deliveries {
		if rec.IsAnchor() {
			continue
		}
		sums[rec.Supplier] += rec.Total
	}

	totals := make([]SupplierTotal, 0, len(sums))
	for supplier, total := range sums {
		totals = append(totals, SupplierTotal{Supplier: supplier, Total: total})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total != totals[j].Total {
			return totals[i].Total > totals[j].Total
		}
		return totals[i].Supplier < totals[j].Supplier
	})
	return totals, nil
}

func dateSpan(records []DeliveryRecord) (time.Time, time.Time) {
	if len(records) == 0 {
		return time.Time{}, time.Time{}
	}
	from, to := records[0].Date, records[0].Date
	for _, rec := range records[1:] {
		if rec.Date.Before(from) {
			from = rec.Date
		}
		if rec.Date.After(to) {
			to = rec.Date
		}
	}
	return from, to
}
