package ledger

import (
	"fmt"
	"testing"
)

func benchFixture(days, perDay int) ([]DeliveryRecord, []Deposit, []DebitNote) {
	var deliveries []DeliveryRecord
	var deposits []Deposit
	var notes []DebitNote
	seq := int64(1)
	start := day("2024-01-01")
	for d := 0; d < days; d++ {
		date := start.AddDate(0, 0, d)
		for i := 0; i < perDay; i++ {
			deliveries = append(deliveries, DeliveryRecord{
				Seq:         seq,
				Date:        date,
				Supplier:    Party(fmt.Sprintf("Proveedor %d", i%4)),
				Product:     DefaultProduct,
				Qty:         10 + int64(i),
				ExitWeight:  100 + float64(i),
				EntryWeight: 20,
				DocType:     DocInvoice,
				UnitPrice:   1.20,
			})
			seq++
		}
		deposits = append(deposits, Deposit{
			Seq:          int64(d + 1),
			Date:         date,
			Counterparty: "Proveedor 0",
			Agency:       "Banco Pichincha",
			Amount:       200,
			Kind:         DepositTransfer,
		})
		if d%7 == 0 {
			notes = append(notes, DebitNote{
				Date:         date,
				Rate:         0.02,
				RealDiscount: 3.5,
			})
		}
	}
	return deliveries, deposits, notes
}

func BenchmarkReconcile(b *testing.B) {
	for _, size := range []struct {
		name   string
		days   int
		perDay int
	}{
		{"month", 30, 4},
		{"year", 365, 4},
	} {
		deliveries, deposits, notes := benchFixture(size.days, size.perDay)
		b.Run(size.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Reconcile(deliveries, deposits, notes, testInitial); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkBalanceSeries(b *testing.B) {
	deliveries, deposits, notes := benchFixture(365, 4)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := BalanceSeries(deliveries, deposits, notes, testInitial); err != nil {
			b.Fatal(err)
		}
	}
}
