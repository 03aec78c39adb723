package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LbsPerKg converts the weighed kilograms into billed pounds.
const LbsPerKg = 2.20462

// DefaultProduct is the single product line the ledger tracks.
const DefaultProduct = "Pollo"

// AnchorParty marks the sentinel record carrying the opening balance.
const AnchorParty Party = "BALANCE_INICIAL"

// AnchorDate predates all real activity so the anchor always sorts first.
var AnchorDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Party identifies a counterparty. Delivery suppliers and deposit
// counterparties share the same value domain, so they share the type.
type Party string

// DocumentType classifies a delivery document.
type DocumentType string

const (
	DocInvoice    DocumentType = "Factura"
	DocDebitNote  DocumentType = "Nota de debito"
	DocCreditNote DocumentType = "Nota de credito"
)

// DepositKind classifies how a deposit entered the bank.
type DepositKind string

const (
	// DepositCash covers cash-machine (ATM) channels.
	DepositCash DepositKind = "Deposito"
	// DepositTransfer covers every other banking channel.
	DepositTransfer DepositKind = "Transferencia"
)

// KindForAgency derives the deposit classification from the issuing channel.
// Cash-machine agencies carry "Cajero" in their name.
func KindForAgency(agency string) DepositKind {
	if strings.Contains(agency, "Cajero") {
		return DepositCash
	}
	return DepositTransfer
}

// DeliveryRecord is one supplier delivery/invoice line.
//
// Seq, Date and Supplier identify the record. Qty through UnitPrice are raw
// inputs. WeightDelta through Total are derived and overwritten on every
// reconciliation. DepositAmount, DailyNet and Balance are computed by the
// engine and are never hand-edited.
type DeliveryRecord struct {
	ID       int64
	Seq      int64
	Date     time.Time
	Supplier Party
	Product  string

	Qty         int64
	ExitWeight  float64
	EntryWeight float64
	DocType     DocumentType
	Crates      int64
	UnitPrice   float64

	WeightDelta  float64
	ConvertedQty float64
	Average      float64
	Total        float64

	DepositAmount float64
	DailyNet      float64
	Balance       float64
}

// IsAnchor reports whether the record is the opening-balance sentinel.
func (r DeliveryRecord) IsAnchor() bool {
	return r.Supplier == AnchorParty
}

// Deposit is a cash inflow paying down a counterparty's balance.
type Deposit struct {
	ID           int64
	Seq          int64
	Date         time.Time
	Counterparty Party
	Agency       string
	Amount       float64
	Kind         DepositKind
}

// DebitNote is a post-hoc adjustment reducing the net owed for one date.
// LbsComputed and PossibleDiscount are informational snapshots taken at
// creation time; only RealDiscount participates in balance computation.
type DebitNote struct {
	ID               int64
	Date             time.Time
	LbsComputed      float64
	Rate             float64
	PossibleDiscount float64
	RealDiscount     float64
}

var (
	// ErrValidation indicates a record failed field constraints.
	ErrValidation = errors.New("ledger: invalid input")
	// ErrConsistency indicates a post-reconciliation invariant failed.
	// This is an engine defect and must abort loudly, never be corrected.
	ErrConsistency = errors.New("ledger: consistency check failed")
	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("ledger: not found")
	// ErrAnchorImmutable rejects edits or deletes aimed at the anchor.
	ErrAnchorImmutable = errors.New("ledger: anchor record is immutable")
	// ErrDuplicate indicates a delivery collides on the dedupe key.
	ErrDuplicate = errors.New("ledger: duplicate delivery")
)

// DateKey normalizes a timestamp to its calendar date for map keys.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Day truncates a timestamp to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDateKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("ledger: bad date key %q: %w", key, err)
	}
	return t, nil
}

// DepositKeyType keys deposit aggregation by calendar date and counterparty.
type DepositKeyType struct {
	Date  string
	Party Party
}

// DepositKey builds the aggregation key for a date and counterparty.
func DepositKey(t time.Time, p Party) DepositKeyType {
	return DepositKeyType{Date: DateKey(t), Party: p}
}

// BalancePoint is one step of the running-balance series.
type BalancePoint struct {
	Date    time.Time
	Net     float64
	Balance float64
}

// Anchor builds the opening-balance sentinel for the given constant.
func Anchor(initial float64) DeliveryRecord {
	return DeliveryRecord{
		Seq:      0,
		Date:     AnchorDate,
		Supplier: AnchorParty,
		Balance:  initial,
	}
}
