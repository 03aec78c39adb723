package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/balanza-erp/balanza-erp/internal/platform/httpx"
	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// Catalogs holds the fixed selection lists the forms offer.
type Catalogs struct {
	Suppliers     []string
	Agencies      []string
	DocumentTypes []string
}

// Exporter renders the reconciled ledger into a spreadsheet.
type Exporter interface {
	Workbook(view View) ([]byte, error)
}

// ImportParser extracts delivery rows from an uploaded spreadsheet. BatchID
// must be stable for identical uploads so re-posting the same file is caught
// by the idempotency store.
type ImportParser interface {
	Rows(r io.Reader) ([]DeliveryInput, error)
	BatchID(data []byte) string
}

// Handler exposes the ledger over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	catalogs Catalogs
	exporter Exporter
	parser   ImportParser
	now      func() time.Time
}

// NewHandler constructs the HTTP handler. Exporter and parser are optional;
// the corresponding endpoints report 503 when absent.
func NewHandler(logger *slog.Logger, service *Service, catalogs Catalogs, exporter Exporter, parser ImportParser) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		catalogs: catalogs,
		exporter: exporter,
		parser:   parser,
		now:      time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Ledger(r.Context())
	if err != nil {
		h.respondError(w, "load ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLedgerResponse(view))
}

func (h *Handler) handleCreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.checkCatalog(req.Supplier, h.catalogs.Suppliers, "supplier"); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.respondError(w, "parse delivery", err)
		return
	}
	created, err := h.service.CreateDelivery(r.Context(), input)
	if err != nil {
		h.respondError(w, "create delivery", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDeliveryResponse(created))
}

func (h *Handler) handleUpdateDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req CreateDeliveryRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.respondError(w, "parse delivery", err)
		return
	}
	updated, err := h.service.UpdateDelivery(r.Context(), id, input)
	if err != nil {
		h.respondError(w, "update delivery", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDeliveryResponse(updated))
}

func (h *Handler) handleDeleteDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDelivery(r.Context(), id); err != nil {
		h.respondError(w, "delete delivery", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req CreateDepositRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.checkCatalog(req.Counterparty, h.catalogs.Suppliers, "counterparty"); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.checkCatalog(req.Agency, h.catalogs.Agencies, "agency"); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.respondError(w, "parse deposit", err)
		return
	}
	created, err := h.service.CreateDeposit(r.Context(), input)
	if err != nil {
		h.respondError(w, "create deposit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDepositResponse(created))
}

func (h *Handler) handleUpdateDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req CreateDepositRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.respondError(w, "parse deposit", err)
		return
	}
	updated, err := h.service.UpdateDeposit(r.Context(), id, input)
	if err != nil {
		h.respondError(w, "update deposit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDepositResponse(updated))
}

func (h *Handler) handleDeleteDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDeposit(r.Context(), id); err != nil {
		h.respondError(w, "delete deposit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateDebitNote(w http.ResponseWriter, r *http.Request) {
	var req CreateDebitNoteRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.respondError(w, "parse debit note", err)
		return
	}
	created, err := h.service.CreateDebitNote(r.Context(), input)
	if err != nil {
		h.respondError(w, "create debit note", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDebitNoteResponse(created))
}

func (h *Handler) handleDeleteDebitNote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDebitNote(r.Context(), id); err != nil {
		h.respondError(w, "delete debit note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if req.BatchID == "" {
		req.BatchID = uuid.NewString()
	}
	rows := make([]DeliveryInput, 0, len(req.Rows))
	for _, row := range req.Rows {
		input, err := row.toInput()
		if err != nil {
			h.respondError(w, "parse import row", err)
			return
		}
		rows = append(rows, input)
	}
	result, err := h.service.ImportDeliveries(r.Context(), req.BatchID, rows)
	if err != nil {
		h.respondError(w, "import deliveries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ImportResponse{BatchID: result.BatchID, Imported: result.Imported, Replaced: result.Replaced})
}

func (h *Handler) handleImportWorkbook(w http.ResponseWriter, r *http.Request) {
	if h.parser == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Import Unavailable", "no workbook parser configured")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart field 'file' required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unreadable upload")
		return
	}
	rows, err := h.parser.Rows(bytes.NewReader(data))
	if err != nil {
		h.respondError(w, "parse workbook", err)
		return
	}
	result, err := h.service.ImportDeliveries(r.Context(), h.parser.BatchID(data), rows)
	if err != nil {
		h.respondError(w, "import workbook", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ImportResponse{BatchID: result.BatchID, Imported: result.Imported, Replaced: result.Replaced})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Export Unavailable", "no workbook exporter configured")
		return
	}
	view, err := h.service.Ledger(r.Context())
	if err != nil {
		h.respondError(w, "load ledger", err)
		return
	}
	data, err := h.exporter.Workbook(view)
	if err != nil {
		h.respondError(w, "render workbook", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="registro_proveedores_depositos.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleBalanceSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.service.Series(r.Context())
	if err != nil {
		h.respondError(w, "load balance series", err)
		return
	}
	points := make([]BalancePointResponse, 0, len(series))
	for _, p := range series {
		points = append(points, BalancePointResponse{Date: DateKey(p.Date), Net: p.Net, Balance: p.Balance})
	}
	httpx.JSON(w, http.StatusOK, points)
}

func (h *Handler) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.WeeklyReport(r.Context())
	if err != nil {
		h.respondError(w, "weekly report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodReportResponse(report))
}

func (h *Handler) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	year, month := now.Year(), now.Month()
	if q := r.URL.Query().Get("month"); q != "" {
		parsed, err := time.Parse("2006-01", q)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("bad month %q, want YYYY-MM", q))
			return
		}
		year, month = parsed.Year(), parsed.Month()
	}
	report, err := h.service.MonthlyReport(r.Context(), year, month)
	if err != nil {
		h.respondError(w, "monthly report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodReportResponse(report))
}

func (h *Handler) handleSupplierTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.SupplierTotals(r.Context())
	if err != nil {
		h.respondError(w, "supplier totals", err)
		return
	}
	rows := make([]SupplierTotalResponse, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, SupplierTotalResponse{Supplier: string(t.Supplier), Total: t.Total})
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleSetInitialBalance(w http.ResponseWriter, r *http.Request) {
	var req SetInitialBalanceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.service.SetInitialBalance(r.Context(), req.InitialBalance); err != nil {
		h.respondError(w, "set initial balance", err)
		return
	}
	view, err := h.service.Ledger(r.Context())
	if err != nil {
		h.respondError(w, "load ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLedgerResponse(view))
}

func (h *Handler) handleCatalogs(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, CatalogsResponse{
		Suppliers:     h.catalogs.Suppliers,
		Agencies:      h.catalogs.Agencies,
		DocumentTypes: h.catalogs.DocumentTypes,
	})
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) checkCatalog(value string, catalog []string, field string) error {
	if len(catalog) == 0 || slices.Contains(catalog, value) {
		return nil
	}
	return fmt.Errorf("unknown %s %q", field, value)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("bad id %q", raw))
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAnchorImmutable):
		httpx.Problem(w, http.StatusConflict, "Anchor Immutable", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Batch", err.Error())
	case errors.Is(err, ErrConsistency):
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Consistency Failure", "ledger reconciliation failed; nothing was persisted")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
