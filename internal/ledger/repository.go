package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ledgerLockID identifies the advisory lock serializing ledger mutations.
const ledgerLockID = 7421

// Repository provides PostgreSQL backed persistence for the three record
// collections and the initial-balance setting.
type Repository struct {
	pool           *pgxpool.Pool
	defaultInitial float64
}

// NewRepository constructs a repository. The default initial balance seeds
// the settings row when none exists yet.
func NewRepository(pool *pgxpool.Pool, defaultInitial float64) *Repository {
	return &Repository{pool: pool, defaultInitial: defaultInitial}
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx, defaultInitial: r.defaultInitial}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Deliveries returns all delivery records, anchor included.
func (r *Repository) Deliveries(ctx context.Context) ([]DeliveryRecord, error) {
	return scanDeliveries(ctx, r.pool)
}

// Deposits returns all deposits.
func (r *Repository) Deposits(ctx context.Context) ([]Deposit, error) {
	return scanDeposits(ctx, r.pool)
}

// DebitNotes returns all debit notes.
func (r *Repository) DebitNotes(ctx context.Context) ([]DebitNote, error) {
	return scanDebitNotes(ctx, r.pool)
}

// InitialBalance loads the anchor constant, seeding the default on first use.
func (r *Repository) InitialBalance(ctx context.Context) (float64, error) {
	return loadInitialBalance(ctx, r.pool, r.defaultInitial)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type txRepo struct {
	tx             pgx.Tx
	defaultInitial float64
}

// LockLedger takes the transaction-scoped advisory lock that serializes
// mutations. Released automatically at commit or rollback.
func (t *txRepo) LockLedger(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockID)
	return err
}

func (t *txRepo) Deliveries(ctx context.Context) ([]DeliveryRecord, error) {
	return scanDeliveries(ctx, t.tx)
}

func (t *txRepo) Deposits(ctx context.Context) ([]Deposit, error) {
	return scanDeposits(ctx, t.tx)
}

func (t *txRepo) DebitNotes(ctx context.Context) ([]DebitNote, error) {
	return scanDebitNotes(ctx, t.tx)
}

func (t *txRepo) InitialBalance(ctx context.Context) (float64, error) {
	return loadInitialBalance(ctx, t.tx, t.defaultInitial)
}

func (t *txRepo) SaveInitialBalance(ctx context.Context, balance float64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_settings (key, value) VALUES ('initial_balance', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		strconv.FormatFloat(balance, 'f', -1, 64))
	return err
}

func (t *txRepo) InsertDelivery(ctx context.Context, rec DeliveryRecord) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO deliveries (
			seq, date, supplier, product, qty, exit_weight, entry_weight,
			doc_type, crates, unit_price, weight_delta, converted_qty,
			average, total, deposit_amount, daily_net, balance
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id`,
		rec.Seq, rec.Date, string(rec.Supplier), rec.Product, rec.Qty,
		rec.ExitWeight, rec.EntryWeight, string(rec.DocType), rec.Crates,
		rec.UnitPrice, rec.WeightDelta, rec.ConvertedQty, rec.Average,
		rec.Total, rec.DepositAmount, rec.DailyNet, rec.Balance,
	).Scan(&id)
	if err != nil {
		return 0, mapPgError(err)
	}
	return id, nil
}

func (t *txRepo) UpdateDelivery(ctx context.Context, rec DeliveryRecord) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE deliveries SET
			seq=$2, date=$3, supplier=$4, product=$5, qty=$6, exit_weight=$7,
			entry_weight=$8, doc_type=$9, crates=$10, unit_price=$11,
			weight_delta=$12, converted_qty=$13, average=$14, total=$15,
			deposit_amount=$16, daily_net=$17, balance=$18
		WHERE id=$1`,
		rec.ID, rec.Seq, rec.Date, string(rec.Supplier), rec.Product, rec.Qty,
		rec.ExitWeight, rec.EntryWeight, string(rec.DocType), rec.Crates,
		rec.UnitPrice, rec.WeightDelta, rec.ConvertedQty, rec.Average,
		rec.Total, rec.DepositAmount, rec.DailyNet, rec.Balance)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteDelivery(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM deliveries WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertDeposit(ctx context.Context, dep Deposit) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO deposits (seq, date, counterparty, agency, amount, kind)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		dep.Seq, dep.Date, string(dep.Counterparty), dep.Agency, dep.Amount, string(dep.Kind),
	).Scan(&id)
	if err != nil {
		return 0, mapPgError(err)
	}
	return id, nil
}

func (t *txRepo) UpdateDeposit(ctx context.Context, dep Deposit) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE deposits SET seq=$2, date=$3, counterparty=$4, agency=$5, amount=$6, kind=$7
		WHERE id=$1`,
		dep.ID, dep.Seq, dep.Date, string(dep.Counterparty), dep.Agency, dep.Amount, string(dep.Kind))
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteDeposit(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM deposits WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertDebitNote(ctx context.Context, note DebitNote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO debit_notes (date, lbs_computed, rate, possible_discount, real_discount)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		note.Date, note.LbsComputed, note.Rate, note.PossibleDiscount, note.RealDiscount,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (t *txRepo) DeleteDebitNote(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM debit_notes WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StoreComputed writes the engine's recomputed fields back onto every row.
func (t *txRepo) StoreComputed(ctx context.Context, recs []DeliveryRecord) error {
	for _, rec := range recs {
		_, err := t.tx.Exec(ctx, `
			UPDATE deliveries SET
				weight_delta=$2, converted_qty=$3, average=$4, total=$5,
				deposit_amount=$6, daily_net=$7, balance=$8
			WHERE id=$1`,
			rec.ID, rec.WeightDelta, rec.ConvertedQty, rec.Average, rec.Total,
			rec.DepositAmount, rec.DailyNet, rec.Balance)
		if err != nil {
			return fmt.Errorf("store computed fields for record %d: %w", rec.ID, err)
		}
	}
	return nil
}

func scanDeliveries(ctx context.Context, q querier) ([]DeliveryRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT id, seq, date, supplier, product, qty, exit_weight, entry_weight,
			doc_type, crates, unit_price, weight_delta, converted_qty, average,
			total, deposit_amount, daily_net, balance
		FROM deliveries ORDER BY date, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []DeliveryRecord
	for rows.Next() {
		var rec DeliveryRecord
		var supplier, docType string
		if err := rows.Scan(
			&rec.ID, &rec.Seq, &rec.Date, &supplier, &rec.Product, &rec.Qty,
			&rec.ExitWeight, &rec.EntryWeight, &docType, &rec.Crates,
			&rec.UnitPrice, &rec.WeightDelta, &rec.ConvertedQty, &rec.Average,
			&rec.Total, &rec.DepositAmount, &rec.DailyNet, &rec.Balance,
		); err != nil {
			return nil, err
		}
		rec.Supplier = Party(supplier)
		rec.DocType = DocumentType(docType)
		rec.Date = Day(rec.Date)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanDeposits(ctx context.Context, q querier) ([]Deposit, error) {
	rows, err := q.Query(ctx, `
		SELECT id, seq, date, counterparty, agency, amount, kind
		FROM deposits ORDER BY date, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deps []Deposit
	for rows.Next() {
		var dep Deposit
		var counterparty, kind string
		if err := rows.Scan(&dep.ID, &dep.Seq, &dep.Date, &counterparty, &dep.Agency, &dep.Amount, &kind); err != nil {
			return nil, err
		}
		dep.Counterparty = Party(counterparty)
		dep.Kind = DepositKind(kind)
		dep.Date = Day(dep.Date)
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

func scanDebitNotes(ctx context.Context, q querier) ([]DebitNote, error) {
	rows, err := q.Query(ctx, `
		SELECT id, date, lbs_computed, rate, possible_discount, real_discount
		FROM debit_notes ORDER BY date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []DebitNote
	for rows.Next() {
		var note DebitNote
		if err := rows.Scan(&note.ID, &note.Date, &note.LbsComputed, &note.Rate, &note.PossibleDiscount, &note.RealDiscount); err != nil {
			return nil, err
		}
		note.Date = Day(note.Date)
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func loadInitialBalance(ctx context.Context, q querier, fallback float64) (float64, error) {
	var raw string
	err := q.QueryRow(ctx, `SELECT value FROM ledger_settings WHERE key='initial_balance'`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	balance, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger: malformed initial balance setting %q: %w", raw, err)
	}
	return balance, nil
}

// mapPgError translates the dedupe unique index violation.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
