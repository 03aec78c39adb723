package ledger

import "fmt"

// CreateDeliveryRequest is the payload for delivery create/update.
type CreateDeliveryRequest struct {
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	Supplier    string  `json:"supplier" validate:"required"`
	Product     string  `json:"product"`
	Qty         int64   `json:"qty" validate:"gte=0"`
	ExitWeight  float64 `json:"exit_weight_kg" validate:"gte=0"`
	EntryWeight float64 `json:"entry_weight_kg" validate:"gte=0"`
	DocType     string  `json:"doc_type" validate:"required"`
	Crates      int64   `json:"crates" validate:"gte=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

// CreateDepositRequest is the payload for deposit create/update.
type CreateDepositRequest struct {
	Date         string  `json:"date" validate:"required,datetime=2006-01-02"`
	Counterparty string  `json:"counterparty" validate:"required"`
	Agency       string  `json:"agency" validate:"required"`
	Amount       float64 `json:"amount" validate:"gt=0"`
}

// CreateDebitNoteRequest is the payload for debit-note creation.
type CreateDebitNoteRequest struct {
	Date         string  `json:"date" validate:"required,datetime=2006-01-02"`
	Rate         float64 `json:"rate" validate:"gte=0,lte=1"`
	RealDiscount float64 `json:"real_discount" validate:"gte=0"`
}

// ImportRequest carries a parsed batch of delivery rows.
type ImportRequest struct {
	BatchID string                  `json:"batch_id"`
	Rows    []CreateDeliveryRequest `json:"rows" validate:"required,min=1,dive"`
}

// DeliveryResponse mirrors a reconciled delivery record.
type DeliveryResponse struct {
	ID            int64   `json:"id"`
	Seq           int64   `json:"seq"`
	Date          string  `json:"date"`
	Supplier      string  `json:"supplier"`
	Product       string  `json:"product"`
	Qty           int64   `json:"qty"`
	ExitWeight    float64 `json:"exit_weight_kg"`
	EntryWeight   float64 `json:"entry_weight_kg"`
	DocType       string  `json:"doc_type"`
	Crates        int64   `json:"crates"`
	UnitPrice     float64 `json:"unit_price"`
	WeightDelta   float64 `json:"weight_delta_kg"`
	ConvertedQty  float64 `json:"converted_lbs"`
	Average       float64 `json:"average"`
	Total         float64 `json:"total"`
	DepositAmount float64 `json:"deposit_amount"`
	DailyNet      float64 `json:"daily_net"`
	Balance       float64 `json:"balance"`
	Anchor        bool    `json:"anchor,omitempty"`
}

// DepositResponse mirrors a deposit.
type DepositResponse struct {
	ID           int64   `json:"id"`
	Seq          int64   `json:"seq"`
	Date         string  `json:"date"`
	Counterparty string  `json:"counterparty"`
	Agency       string  `json:"agency"`
	Amount       float64 `json:"amount"`
	Kind         string  `json:"kind"`
}

// DebitNoteResponse mirrors a debit note.
type DebitNoteResponse struct {
	ID               int64   `json:"id"`
	Date             string  `json:"date"`
	LbsComputed      float64 `json:"lbs_computed"`
	Rate             float64 `json:"rate"`
	PossibleDiscount float64 `json:"possible_discount"`
	RealDiscount     float64 `json:"real_discount"`
}

// LedgerResponse is the full reconciled snapshot.
type LedgerResponse struct {
	InitialBalance float64             `json:"initial_balance"`
	Deliveries     []DeliveryResponse  `json:"deliveries"`
	Deposits       []DepositResponse   `json:"deposits"`
	DebitNotes     []DebitNoteResponse `json:"debit_notes"`
}

// BalancePointResponse is one step of the balance series.
type BalancePointResponse struct {
	Date    string  `json:"date"`
	Net     float64 `json:"net"`
	Balance float64 `json:"balance"`
}

// ImportResponse summarizes an accepted batch.
type ImportResponse struct {
	BatchID  string `json:"batch_id"`
	Imported int    `json:"imported"`
	Replaced int    `json:"replaced"`
}

// SupplierTotalResponse is one row of the supplier breakdown.
type SupplierTotalResponse struct {
	Supplier string  `json:"supplier"`
	Total    float64 `json:"total"`
}

// PeriodReportResponse groups records for one reporting window.
type PeriodReportResponse struct {
	Label   string             `json:"label"`
	From    string             `json:"from,omitempty"`
	To      string             `json:"to,omitempty"`
	Records []DeliveryResponse `json:"records"`
}

// SetInitialBalanceRequest replaces the opening accumulated balance.
type SetInitialBalanceRequest struct {
	InitialBalance float64 `json:"initial_balance"`
}

// CatalogsResponse lists the fixed selection catalogs.
type CatalogsResponse struct {
	Suppliers     []string `json:"suppliers"`
	Agencies      []string `json:"agencies"`
	DocumentTypes []string `json:"document_types"`
}

func (r CreateDeliveryRequest) toInput() (DeliveryInput, error) {
	date, err := parseDateKey(r.Date)
	if err != nil {
		return DeliveryInput{}, fmt.Errorf("%w: bad date %q", ErrValidation, r.Date)
	}
	return DeliveryInput{
		Date:        date,
		Supplier:    Party(r.Supplier),
		Product:     r.Product,
		Qty:         r.Qty,
		ExitWeight:  r.ExitWeight,
		EntryWeight: r.EntryWeight,
		DocType:     DocumentType(r.DocType),
		Crates:      r.Crates,
		UnitPrice:   r.UnitPrice,
	}, nil
}

func (r CreateDepositRequest) toInput() (DepositInput, error) {
	date, err := parseDateKey(r.Date)
	if err != nil {
		return DepositInput{}, fmt.Errorf("%w: bad date %q", ErrValidation, r.Date)
	}
	return DepositInput{
		Date:         date,
		Counterparty: Party(r.Counterparty),
		Agency:       r.Agency,
		Amount:       r.Amount,
	}, nil
}

func (r CreateDebitNoteRequest) toInput() (DebitNoteInput, error) {
	date, err := parseDateKey(r.Date)
	if err != nil {
		return DebitNoteInput{}, fmt.Errorf("%w: bad date %q", ErrValidation, r.Date)
	}
	return DebitNoteInput{Date: date, Rate: r.Rate, RealDiscount: r.RealDiscount}, nil
}

func toDeliveryResponse(rec DeliveryRecord) DeliveryResponse {
	return DeliveryResponse{
		ID:            rec.ID,
		Seq:           rec.Seq,
		Date:          DateKey(rec.Date),
		Supplier:      string(rec.Supplier),
		Product:       rec.Product,
		Qty:           rec.Qty,
		ExitWeight:    rec.ExitWeight,
		EntryWeight:   rec.EntryWeight,
		DocType:       string(rec.DocType),
		Crates:        rec.Crates,
		UnitPrice:     rec.UnitPrice,
		WeightDelta:   rec.WeightDelta,
		ConvertedQty:  rec.ConvertedQty,
		Average:       rec.Average,
		Total:         rec.Total,
		DepositAmount: rec.DepositAmount,
		DailyNet:      rec.DailyNet,
		Balance:       rec.Balance,
		Anchor:        rec.IsAnchor(),
	}
}

func toDepositResponse(dep Deposit) DepositResponse {
	return DepositResponse{
		ID:           dep.ID,
		Seq:          dep.Seq,
		Date:         DateKey(dep.Date),
		Counterparty: string(dep.Counterparty),
		Agency:       dep.Agency,
		Amount:       dep.Amount,
		Kind:         string(dep.Kind),
	}
}

func toDebitNoteResponse(note DebitNote) DebitNoteResponse {
	return DebitNoteResponse{
		ID:               note.ID,
		Date:             DateKey(note.Date),
		LbsComputed:      note.LbsComputed,
		Rate:             note.Rate,
		PossibleDiscount: note.PossibleDiscount,
		RealDiscount:     note.RealDiscount,
	}
}

func toLedgerResponse(view View) LedgerResponse {
	resp := LedgerResponse{
		InitialBalance: view.InitialBalance,
		Deliveries:     make([]DeliveryResponse, 0, len(view.Deliveries)),
		Deposits:       make([]DepositResponse, 0, len(view.Deposits)),
		DebitNotes:     make([]DebitNoteResponse, 0, len(view.DebitNotes)),
	}
	for _, rec := range view.Deliveries {
		resp.Deliveries = append(resp.Deliveries, toDeliveryResponse(rec))
	}
	for _, dep := range view.Deposits {
		resp.Deposits = append(resp.Deposits, toDepositResponse(dep))
	}
	for _, note := range view.DebitNotes {
		resp.DebitNotes = append(resp.DebitNotes, toDebitNoteResponse(note))
	}
	return resp
}

func toPeriodReportResponse(report PeriodReport) PeriodReportResponse {
	resp := PeriodReportResponse{Label: report.Label, Records: make([]DeliveryResponse, 0, len(report.Records))}
	if !report.From.IsZero() {
		resp.From = DateKey(report.From)
		resp.To = DateKey(report.To)
	}
	for _, rec := range report.Records {
		resp.Records = append(resp.Records, toDeliveryResponse(rec))
	}
	return resp
}
