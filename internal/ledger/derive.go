package ledger

import "fmt"

// Derive recomputes the derived fields of a delivery record from its raw
// inputs: weight delta, converted pounds, per-unit average and monetary
// total. It validates the raw fields first and leaves the computed balance
// fields untouched; the orchestrator fills those in.
//
// A zero quantity yields average 0 rather than a division error.
func Derive(rec DeliveryRecord) (DeliveryRecord, error) {
	if rec.IsAnchor() {
		// The anchor carries no measurable content and never derives.
		return rec, nil
	}
	if err := validateInputs(rec); err != nil {
		return DeliveryRecord{}, err
	}

	rec.WeightDelta = rec.ExitWeight - rec.EntryWeight
	rec.ConvertedQty = rec.WeightDelta * LbsPerKg
	if rec.Qty != 0 {
		rec.Average = rec.ConvertedQty / float64(rec.Qty)
	} else {
		rec.Average = 0
	}
	rec.Total = rec.ConvertedQty * rec.UnitPrice
	return rec, nil
}

func validateInputs(rec DeliveryRecord) error {
	switch {
	case rec.Qty < 0:
		return fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	case rec.ExitWeight < 0:
		return fmt.Errorf("%w: exit weight must not be negative", ErrValidation)
	case rec.EntryWeight < 0:
		return fmt.Errorf("%w: entry weight must not be negative", ErrValidation)
	case rec.UnitPrice < 0:
		return fmt.Errorf("%w: unit price must not be negative", ErrValidation)
	case rec.Crates < 0:
		return fmt.Errorf("%w: crate count must not be negative", ErrValidation)
	case rec.EntryWeight > rec.ExitWeight:
		return fmt.Errorf("%w: entry weight exceeds exit weight", ErrValidation)
	case rec.Qty == 0 && rec.ExitWeight == 0 && rec.EntryWeight == 0:
		return fmt.Errorf("%w: delivery has no measurable content", ErrValidation)
	}
	return nil
}
