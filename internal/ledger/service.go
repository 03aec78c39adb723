package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RepositoryPort describes the record store used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Deliveries(ctx context.Context) ([]DeliveryRecord, error)
	Deposits(ctx context.Context) ([]Deposit, error)
	DebitNotes(ctx context.Context) ([]DebitNote, error)
	InitialBalance(ctx context.Context) (float64, error)
}

// TxRepository exposes the operations available inside one mutation
// transaction. LockLedger serializes mutations: the engine assumes it sees a
// consistent, non-concurrently-mutated snapshot of all three collections.
type TxRepository interface {
	LockLedger(ctx context.Context) error
	Deliveries(ctx context.Context) ([]DeliveryRecord, error)
	Deposits(ctx context.Context) ([]Deposit, error)
	DebitNotes(ctx context.Context) ([]DebitNote, error)
	InitialBalance(ctx context.Context) (float64, error)
	SaveInitialBalance(ctx context.Context, balance float64) error
	InsertDelivery(ctx context.Context, rec DeliveryRecord) (int64, error)
	UpdateDelivery(ctx context.Context, rec DeliveryRecord) error
	DeleteDelivery(ctx context.Context, id int64) error
	InsertDeposit(ctx context.Context, dep Deposit) (int64, error)
	UpdateDeposit(ctx context.Context, dep Deposit) error
	DeleteDeposit(ctx context.Context, id int64) error
	InsertDebitNote(ctx context.Context, note DebitNote) (int64, error)
	DeleteDebitNote(ctx context.Context, id int64) error
	StoreComputed(ctx context.Context, recs []DeliveryRecord) error
}

// AuditPort records mutation events.
type AuditPort interface {
	Record(ctx context.Context, action, entity, ref string) error
}

// SeriesCache holds the latest balance series for cheap report reads.
type SeriesCache interface {
	Store(ctx context.Context, series []BalancePoint) error
	Load(ctx context.Context) ([]BalancePoint, bool, error)
}

// MetricsPort observes reconciliation runs and import volume.
type MetricsPort interface {
	ObserveReconcile(outcome string, elapsed time.Duration)
	AddImportedRows(n int)
}

// Service owns the read-mutate-reconcile-persist cycle around the engine.
// Every successful mutation leaves the store fully reconciled; a rejected
// mutation leaves it untouched.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   SeriesCache
	idem    IdempotencyPort
	metrics MetricsPort
	logger  *slog.Logger
}

// NewService constructs the ledger service. The audit, cache and idempotency
// collaborators are optional.
func NewService(repo RepositoryPort, audit AuditPort, cache SeriesCache, idem IdempotencyPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, idem: idem, logger: logger}
}

// WithMetrics attaches a metrics observer.
func (s *Service) WithMetrics(m MetricsPort) *Service {
	s.metrics = m
	return s
}

// DeliveryInput carries the raw fields of a delivery mutation.
type DeliveryInput struct {
	Date        time.Time
	Supplier    Party
	Product     string
	Qty         int64
	ExitWeight  float64
	EntryWeight float64
	DocType     DocumentType
	Crates      int64
	UnitPrice   float64
}

// DepositInput carries the raw fields of a deposit mutation.
type DepositInput struct {
	Date         time.Time
	Counterparty Party
	Agency       string
	Amount       float64
}

// DebitNoteInput carries the raw fields of a debit-note mutation. The pounds
// snapshot and rate-implied discount are computed by the service.
type DebitNoteInput struct {
	Date         time.Time
	Rate         float64
	RealDiscount float64
}

// View is the fully reconciled state handed to collaborators.
type View struct {
	Deliveries     []DeliveryRecord
	Deposits       []Deposit
	DebitNotes     []DebitNote
	InitialBalance float64
}

// EnsureAnchor seeds the opening-balance sentinel when the store is empty.
// The anchor must exist before any reconciliation result can be persisted.
func (s *Service) EnsureAnchor(ctx context.Context) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockLedger(ctx); err != nil {
			return err
		}
		deliveries, err := tx.Deliveries(ctx)
		if err != nil {
			return err
		}
		if findAnchor(deliveries) != nil {
			return nil
		}
		initial, err := tx.InitialBalance(ctx)
		if err != nil {
			return err
		}
		_, err = tx.InsertDelivery(ctx, Anchor(initial))
		return err
	})
}

// CreateDelivery validates, derives, assigns the next sequence number,
// applies the keep-last dedupe rule and reconciles.
func (s *Service) CreateDelivery(ctx context.Context, input DeliveryInput) (DeliveryRecord, error) {
	rec, err := Derive(deliveryFromInput(input))
	if err != nil {
		return DeliveryRecord{}, err
	}

	var created DeliveryRecord
	err = s.mutate(ctx, func(ctx context.Context, tx TxRepository, st *state) error {
		rec.Seq = nextSeq(st.deliveries)
		// Re-registering the same delivery replaces the earlier row.
		for _, dup := range findDuplicates(st.deliveries, rec) {
			if err := tx.DeleteDelivery(ctx, dup.ID); err != nil {
				return err
			}
			st.removeDelivery(dup.ID)
		}
		id, err := tx.InsertDelivery(ctx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		st.deliveries = append(st.deliveries, rec)
		created = rec
		return s.record(ctx, "create", "delivery", fmt.Sprintf("%d", id))
	})
	if err != nil {
		return DeliveryRecord{}, err
	}
	return created, nil
}

// UpdateDelivery replaces the raw fields of an existing record. The sequence
// number and identity are preserved; derived fields are recomputed.
func (s *Service) UpdateDelivery(ctx context.Context, id int64, input DeliveryInput) (DeliveryRecord, error) {
	rec, err := Derive(deliveryFromInput(input))
	if err != nil {
		return DeliveryRecord{}, err
	}

	var updated DeliveryRecord
	err = s.mutate(ctx, func(ctx context.Context, tx TxRepository, st *state) error {
		existing := st.findDelivery(id)
		if existing == nil {
			return ErrNotFound
		}
		if existing.IsAnchor() {
			return ErrAnchorImmutable
		}
		rec.ID = existing.ID
		rec.Seq = existing.Seq
		if err := tx.UpdateDelivery(ctx, rec); err != nil {
			return err
		}
		*existing = rec
		updated = rec
		return s.record(ctx, "update", "delivery", fmt.Sprintf("%d", id))
	})
	if err != nil {
		return DeliveryRecord{}, err
	}
	return updated, nil
}

// DeleteDelivery removes a record by identity. The anchor is excluded.
func (s *Service) DeleteDelivery(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(ctx context.Context, tx TxRepository, st *state) error {
		existing := st.findDelivery(id)
		if existing == nil {
			return ErrNotFound
		}
		if existing.IsAnchor() {
			return ErrAnchorImmutable
		}
		if err := tx.DeleteDelivery(ctx, id); err != nil {
			return err
		}
		st.removeDelivery(id)
		return s.record(ctx, "delete", "delivery", fmt.Sprintf("%d", id))
	})
}

// CreateDeposit registers a cash inflow. The document kind is derived from
// the issuing agency.
func (s *Service) CreateDeposit(ctx context.Context, input DepositInput) (Deposit, error) {
	if input.Amount <= 0 {
		return Deposit{}, fmt.Errorf("%w: deposit amount must be positive", ErrValidation)
	}
	dep := Deposit{
		Date:         Day(input.Date),
		Counterparty: input.Counterparty,
		Agency:       input.Agency,
		Amount:       input.Amount,
		Kind:         KindForAgency(input.Agency),
	}

	var created Deposit
	err := s.mutate(ctx, func(ctx context.Context, tx TxRepository, st *state) error {
		dep.Seq = nextDepositSeq(st.deposits)
		id, err := tx.InsertDeposit(ctx, dep)
		if err != nil {
			return err
		}
		dep.ID = id
		st.deposits = append(st.deposits, dep)
		created = dep
		return s.record(ctx, "create", "deposit", fmt.Sprintf("%d", id))
	})
	if err != nil {
		return Deposit{}, err
	}
	return created, nil
}

// UpdateDeposit replaces the raw fields of an existing deposit.
func (s *Service) UpdateDeposit(ctx context.Context, id int64, input DepositInput) (Deposit, error) {
	if input.Amount <= 0 {
		return Deposit{}, fmt.Errorf("%w: deposit amount must be positive", ErrValidation)
	}

	var updated Deposit
	err := s.mutate(ctx, func(ctx context.Context, tx TxRepository, st *state) error {
		existing := st.findDeposit(id)
		if existing == nil {
			return ErrNotFound
		}
		dep := Deposit{
			ID:           existing.ID,
			Seq:          existing.Seq,
			Date:         Day(input.Date),
			Counterparty: input.Counterparty,
			Agency:       input.Agency,
			Amount:       input.Amount,
			Kind:         KindForAgency(input.Agency),
		}
		if err := tx.UpdateDeposit(ctx, dep); err != nil {
			return err
		}
		*existing = dep
		updated = dep
		return s.record(ctx, "update", "deposit", fmt.Sprintf("%d", id))
	})
	if err != nil {
		return Deposit{}, err
	}
	return updated, nil
}

// DeleteDeposit removes a deposit by identity.
func (s *Service) DeleteDeposit(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(ctx context.Context, tx TxRepository, st *state) error {
		if st.findDeposit(id) == nil {
			return ErrNotFound
		}
		if err := tx.DeleteDeposit(ctx, id); err != nil {
			return err
		}
		st.removeDeposit(id)
		return s.record(ctx, "delete", "deposit", fmt.Sprintf("%d", id))
	})
}

// CreateDebitNote registers an adjustment for one date. The computed-pounds
// snapshot and the rate-implied discount are taken from the current state of
// the delivery collection at creation time.
func (s *Service) CreateDebitNote(ctx context.Context, input DebitNoteInput) (DebitNote, error) {
	if input.RealDiscount <= 0 && input.Rate <= 0 {
		return DebitNote{}, fmt.Errorf("%w: debit note needs a rate or a real discount", ErrValidation)
	}
	if input.Rate < 0 || input.Rate > 1 {
		return DebitNote{}, fmt.Errorf("%w: discount rate must be between 0 and 1", ErrValidation)
	}
	if input.RealDiscount < 0 {
		return DebitNote{}, fmt.Errorf("%w: real discount must not be negative", ErrValidation)
	}

	var created DebitNote
	err := s.mutate(ctx, func(ctx context.Context, tx TxRepository, st *state) error {
		recs, err := Reconcile(st.deliveries, st.deposits, st.notes, st.initial)
		if err != nil {
			return err
		}
		lbs := LbsForDate(recs, DateKey(input.Date))
		note := DebitNote{
			Date:             Day(input.Date),
			LbsComputed:      lbs,
			Rate:             input.Rate,
			PossibleDiscount: lbs * input.Rate,
			RealDiscount:     input.RealDiscount,
		}
		id, err := tx.InsertDebitNote(ctx, note)
		if err != nil {
			return err
		}
		note.ID = id
		st.notes = append(st.notes, note)
		created = note
		return s.record(ctx, "create", "debit_note", fmt.Sprintf("%d", id))
	})
	if err != nil {
		return DebitNote{}, err
	}
	return created, nil
}

// DeleteDebitNote removes a note by identity.
func (s *Service) DeleteDebitNote(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(ctx context.Context, tx TxRepository, st *state) error {
		if st.findNote(id) == nil {
			return ErrNotFound
		}
		if err := tx.DeleteDebitNote(ctx, id); err != nil {
			return err
		}
		st.removeNote(id)
		return s.record(ctx, "delete", "debit_note", fmt.Sprintf("%d", id))
	})
}

// SetInitialBalance updates the anchor constant and reconciles everything
// against the new value.
func (s *Service) SetInitialBalance(ctx context.Context, balance float64) error {
	return s.mutate(ctx, func(ctx context.Context, tx TxRepository, st *state) error {
		if err := tx.SaveInitialBalance(ctx, balance); err != nil {
			return err
		}
		st.initial = balance
		return s.record(ctx, "update", "initial_balance", fmt.Sprintf("%.2f", balance))
	})
}

// Ledger returns the fully reconciled view of all three collections.
func (s *Service) Ledger(ctx context.Context) (View, error) {
	deliveries, err := s.repo.Deliveries(ctx)
	if err != nil {
		return View{}, err
	}
	deposits, err := s.repo.Deposits(ctx)
	if err != nil {
		return View{}, err
	}
	notes, err := s.repo.DebitNotes(ctx)
	if err != nil {
		return View{}, err
	}
	initial, err := s.repo.InitialBalance(ctx)
	if err != nil {
		return View{}, err
	}
	recs, err := Reconcile(deliveries, deposits, notes, initial)
	if err != nil {
		return View{}, err
	}
	return View{Deliveries: recs, Deposits: deposits, DebitNotes: notes, InitialBalance: initial}, nil
}

// Series returns the balance series, served from cache when available.
func (s *Service) Series(ctx context.Context) ([]BalancePoint, error) {
	if s.cache != nil {
		if series, ok, err := s.cache.Load(ctx); err == nil && ok {
			return series, nil
		} else if err != nil {
			s.logger.Warn("series cache read failed", slog.Any("error", err))
		}
	}
	return s.computeSeries(ctx)
}

// RefreshSeries recomputes the balance series and stores it in the cache.
// The background warmup job calls this on schedule.
func (s *Service) RefreshSeries(ctx context.Context) ([]BalancePoint, error) {
	series, err := s.computeSeries(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Store(ctx, series); err != nil {
			s.logger.Warn("series cache write failed", slog.Any("error", err))
		}
	}
	return series, nil
}

// CheckIntegrity recomputes the ledger and compares it against the persisted
// computed fields. Drift means a mutation bypassed the reconcile cycle or the
// store was edited by hand; it is reported, never silently repaired.
func (s *Service) CheckIntegrity(ctx context.Context) error {
	deliveries, err := s.repo.Deliveries(ctx)
	if err != nil {
		return err
	}
	deposits, err := s.repo.Deposits(ctx)
	if err != nil {
		return err
	}
	notes, err := s.repo.DebitNotes(ctx)
	if err != nil {
		return err
	}
	initial, err := s.repo.InitialBalance(ctx)
	if err != nil {
		return err
	}
	recs, err := Reconcile(deliveries, deposits, notes, initial)
	if err != nil {
		return err
	}

	persisted := make(map[int64]DeliveryRecord, len(deliveries))
	for _, d := range deliveries {
		persisted[d.ID] = d
	}
	var drifted []int64
	for _, rec := range recs {
		have, ok := persisted[rec.ID]
		if !ok {
			continue
		}
		if math.Abs(have.DepositAmount-rec.DepositAmount) > balanceTolerance ||
			math.Abs(have.DailyNet-rec.DailyNet) > balanceTolerance ||
			math.Abs(have.Balance-rec.Balance) > balanceTolerance {
			drifted = append(drifted, rec.ID)
		}
	}
	if len(drifted) > 0 {
		return fmt.Errorf("%w: %d records drifted from recomputed values (ids %v)",
			ErrConsistency, len(drifted), drifted)
	}
	return nil
}

func (s *Service) computeSeries(ctx context.Context) ([]BalancePoint, error) {
	view, err := s.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	return BalanceSeries(view.Deliveries, view.Deposits, view.DebitNotes, view.InitialBalance)
}

// state is the in-transaction working copy of the three collections.
type state struct {
	deliveries []DeliveryRecord
	deposits   []Deposit
	notes      []DebitNote
	initial    float64
}

func (st *state) findDelivery(id int64) *DeliveryRecord {
	for i := range st.deliveries {
		if st.deliveries[i].ID == id {
			return &st.deliveries[i]
		}
	}
	return nil
}

func (st *state) removeDelivery(id int64) {
	for i := range st.deliveries {
		if st.deliveries[i].ID == id {
			st.deliveries = append(st.deliveries[:i], st.deliveries[i+1:]...)
			return
		}
	}
}

func (st *state) findDeposit(id int64) *Deposit {
	for i := range st.deposits {
		if st.deposits[i].ID == id {
			return &st.deposits[i]
		}
	}
	return nil
}

func (st *state) removeDeposit(id int64) {
	for i := range st.deposits {
		if st.deposits[i].ID == id {
			st.deposits = append(st.deposits[:i], st.deposits[i+1:]...)
			return
		}
	}
}

func (st *state) findNote(id int64) *DebitNote {
	for i := range st.notes {
		if st.notes[i].ID == id {
			return &st.notes[i]
		}
	}
	return nil
}

func (st *state) removeNote(id int64) {
	for i := range st.notes {
		if st.notes[i].ID == id {
			st.notes = append(st.notes[:i], st.notes[i+1:]...)
			return
		}
	}
}

// mutate runs one serialized mutation: load the snapshot, apply the change,
// reconcile the result and persist the recomputed fields. Any error rolls
// the whole transaction back, so a rejected mutation changes nothing.
func (s *Service) mutate(ctx context.Context, apply func(context.Context, TxRepository, *state) error) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockLedger(ctx); err != nil {
			return err
		}
		st := &state{}
		var err error
		if st.deliveries, err = tx.Deliveries(ctx); err != nil {
			return err
		}
		if st.deposits, err = tx.Deposits(ctx); err != nil {
			return err
		}
		if st.notes, err = tx.DebitNotes(ctx); err != nil {
			return err
		}
		if st.initial, err = tx.InitialBalance(ctx); err != nil {
			return err
		}

		if err := apply(ctx, tx, st); err != nil {
			return err
		}

		start := time.Now()
		recs, err := Reconcile(st.deliveries, st.deposits, st.notes, st.initial)
		if err != nil {
			if s.metrics != nil {
				s.metrics.ObserveReconcile("error", time.Since(start))
			}
			return err
		}
		if s.metrics != nil {
			s.metrics.ObserveReconcile("ok", time.Since(start))
		}
		return tx.StoreComputed(ctx, recs)
	})
	if err != nil {
		return err
	}

	if _, err := s.RefreshSeries(ctx); err != nil {
		// The store already committed; the cache catches up on next refresh.
		s.logger.Warn("series refresh after mutation failed", slog.Any("error", err))
	}
	return nil
}

func (s *Service) record(ctx context.Context, action, entity, ref string) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Record(ctx, action, entity, ref); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
	return nil
}

func deliveryFromInput(input DeliveryInput) DeliveryRecord {
	product := input.Product
	if product == "" {
		product = DefaultProduct
	}
	return DeliveryRecord{
		Date:        Day(input.Date),
		Supplier:    input.Supplier,
		Product:     product,
		Qty:         input.Qty,
		ExitWeight:  input.ExitWeight,
		EntryWeight: input.EntryWeight,
		DocType:     input.DocType,
		Crates:      input.Crates,
		UnitPrice:   input.UnitPrice,
	}
}

// nextSeq assigns globally unique, monotonically increasing sequence
// numbers. Earlier revisions mixed per-date and global counters; a single
// global counter avoids collisions within a date.
func nextSeq(deliveries []DeliveryRecord) int64 {
	var highest int64
	for _, r := range deliveries {
		if r.IsAnchor() {
			continue
		}
		if r.Seq > highest {
			highest = r.Seq
		}
	}
	return highest + 1
}

func nextDepositSeq(deposits []Deposit) int64 {
	var highest int64
	for _, d := range deposits {
		if d.Seq > highest {
			highest = d.Seq
		}
	}
	return highest + 1
}

// findDuplicates applies the delivery identity rule used by both the form
// and the import path: same date, supplier, weights and document type.
func findDuplicates(deliveries []DeliveryRecord, rec DeliveryRecord) []DeliveryRecord {
	var dups []DeliveryRecord
	for _, r := range deliveries {
		if r.IsAnchor() {
			continue
		}
		if DateKey(r.Date) == DateKey(rec.Date) &&
			r.Supplier == rec.Supplier &&
			r.ExitWeight == rec.ExitWeight &&
			r.EntryWeight == rec.EntryWeight &&
			r.DocType == rec.DocType {
			dups = append(dups, r)
		}
	}
	return dups
}
