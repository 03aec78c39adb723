package ledger

import (
	"context"
	"fmt"
)

// IdempotencyPort guards the import path against re-posting the same batch.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ImportModule is the idempotency module name for ledger imports.
const ImportModule = "ledger_import"

// ImportResult summarizes a processed batch.
type ImportResult struct {
	BatchID  string
	Imported int
	Replaced int
}

// ImportDeliveries merges a batch of raw delivery rows into the collection.
// Every row passes the derived-field validation before anything is written;
// one bad row rejects the whole batch and leaves the store unchanged.
// Sequence numbers are assigned by the same rule as interactive creation,
// and rows colliding on the dedupe key replace the earlier record.
func (s *Service) ImportDeliveries(ctx context.Context, batchID string, rows []DeliveryInput) (ImportResult, error) {
	if len(rows) == 0 {
		return ImportResult{}, fmt.Errorf("%w: import batch is empty", ErrValidation)
	}

	recs := make([]DeliveryRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := Derive(deliveryFromInput(row))
		if err != nil {
			return ImportResult{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		recs = append(recs, rec)
	}

	if s.idem != nil && batchID != "" {
		if err := s.idem.CheckAndInsert(ctx, batchID, ImportModule); err != nil {
			return ImportResult{}, err
		}
	}

	result := ImportResult{BatchID: batchID}
	err := s.mutate(ctx, func(ctx context.Context, tx TxRepository, st *state) error {
		seq := nextSeq(st.deliveries)
		for _, rec := range recs {
			for _, dup := range findDuplicates(st.deliveries, rec) {
				if err := tx.DeleteDelivery(ctx, dup.ID); err != nil {
					return err
				}
				st.removeDelivery(dup.ID)
				result.Replaced++
			}
			rec.Seq = seq
			seq++
			id, err := tx.InsertDelivery(ctx, rec)
			if err != nil {
				return err
			}
			rec.ID = id
			st.deliveries = append(st.deliveries, rec)
			result.Imported++
		}
		return s.record(ctx, "import", "delivery_batch", batchID)
	})
	if err != nil {
		if s.idem != nil && batchID != "" {
			// Release the key so the caller can retry the batch.
			_ = s.idem.Delete(ctx, batchID)
		}
		return ImportResult{}, err
	}
	if s.metrics != nil {
		s.metrics.AddImportedRows(result.Imported)
	}
	return result, nil
}
