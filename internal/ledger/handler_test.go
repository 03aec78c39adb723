package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type stubExporter struct {
	data []byte
	err  error
}

func (s stubExporter) Workbook(view View) ([]byte, error) {
	return s.data, s.err
}

type stubParser struct {
	rows []DeliveryInput
	err  error
}

func (s stubParser) Rows(r io.Reader) ([]DeliveryInput, error) {
	return s.rows, s.err
}

func (s stubParser) BatchID(data []byte) string {
	return fmt.Sprintf("stub-%d", len(data))
}

func newTestServer(t *testing.T, exporter Exporter, parser ImportParser) (*httptest.Server, *Service) {
	t.Helper()
	svc, _, _, _ := newTestService(t)
	handler := NewHandler(slog.Default(), svc, Catalogs{
		Suppliers:     []string{"LIRIS SA", "Gallina 1", "Monze Anzules", "Medina"},
		Agencies:      []string{"Cajero Automatico Pichincha", "Banco Pichincha"},
		DocumentTypes: []string{"Factura", "Nota de debito", "Nota de credito"},
	}, exporter, parser)
	handler.WithNow(func() time.Time { return day("2024-01-15") })

	r := chi.NewRouter()
	r.Route("/ledger", handler.MountRoutes)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func validDeliveryBody() map[string]any {
	return map[string]any{
		"date":            "2024-01-10",
		"supplier":        "LIRIS SA",
		"qty":             10,
		"exit_weight_kg":  100.0,
		"entry_weight_kg": 20.0,
		"doc_type":        "Factura",
		"unit_price":      1.00,
	}
}

func TestHandlerCreateDelivery(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	resp := postJSON(t, server.URL+"/ledger/deliveries", validDeliveryBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[DeliveryResponse](t, resp)
	require.Equal(t, int64(1), created.Seq)
	require.InDelta(t, -419.67, created.Balance, 0.005)
}

func TestHandlerCreateDeliveryRejectsUnknownSupplier(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	body := validDeliveryBody()
	body["supplier"] = "Desconocido"
	resp := postJSON(t, server.URL+"/ledger/deliveries", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerCreateDeliveryRejectsBadPayload(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	body := validDeliveryBody()
	body["date"] = "10/01/2024"
	resp := postJSON(t, server.URL+"/ledger/deliveries", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body = validDeliveryBody()
	body["entry_weight_kg"] = 150.0
	resp = postJSON(t, server.URL+"/ledger/deliveries", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerGetLedger(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	resp := postJSON(t, server.URL+"/ledger/deliveries", validDeliveryBody())
	resp.Body.Close()

	getResp, err := http.Get(server.URL + "/ledger/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	ledger := decodeBody[LedgerResponse](t, getResp)
	require.InDelta(t, testInitial, ledger.InitialBalance, 1e-9)
	require.Len(t, ledger.Deliveries, 2)
	require.True(t, ledger.Deliveries[0].Anchor)
}

func TestHandlerDeleteAnchorRejected(t *testing.T) {
	server, svc := newTestServer(t, nil, nil)

	view, err := svc.Ledger(context.Background())
	require.NoError(t, err)
	anchorID := view.Deliveries[0].ID

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/ledger/deliveries/%d", server.URL, anchorID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerCreateDeposit(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	resp := postJSON(t, server.URL+"/ledger/deposits", map[string]any{
		"date":         "2024-01-11",
		"counterparty": "LIRIS SA",
		"agency":       "Cajero Automatico Pichincha",
		"amount":       150.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[DepositResponse](t, resp)
	require.Equal(t, "Deposito", created.Kind)

	resp = postJSON(t, server.URL+"/ledger/deposits", map[string]any{
		"date":         "2024-01-11",
		"counterparty": "LIRIS SA",
		"agency":       "Cajero Automatico Pichincha",
		"amount":       0,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerDebitNoteLifecycle(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	resp := postJSON(t, server.URL+"/ledger/deliveries", validDeliveryBody())
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/ledger/debit-notes", map[string]any{
		"date":          "2024-01-10",
		"rate":          0.02,
		"real_discount": 3.5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	note := decodeBody[DebitNoteResponse](t, resp)
	require.InDelta(t, 176.37, note.LbsComputed, 0.005)
	require.InDelta(t, 3.5274, note.PossibleDiscount, 0.005)

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/ledger/debit-notes/%d", server.URL, note.ID), nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)
}

func TestHandlerImportBatch(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	payload := map[string]any{
		"batch_id": "batch-1",
		"rows":     []map[string]any{validDeliveryBody()},
	}
	resp := postJSON(t, server.URL+"/ledger/import", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[ImportResponse](t, resp)
	require.Equal(t, 1, result.Imported)

	// Same batch again: rejected as a duplicate.
	resp = postJSON(t, server.URL+"/ledger/import", payload)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerImportWorkbook(t *testing.T) {
	parser := stubParser{rows: []DeliveryInput{
		{
			Date:        day("2024-01-10"),
			Supplier:    "LIRIS SA",
			Qty:         10,
			ExitWeight:  100,
			EntryWeight: 20,
			DocType:     DocInvoice,
			UnitPrice:   1.00,
		},
	}}
	server, _ := newTestServer(t, nil, parser)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "upload.xlsx")
	require.NoError(t, err)
	_, err = fw.Write([]byte("workbook-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(server.URL+"/ledger/import.xlsx", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[ImportResponse](t, resp)
	require.Equal(t, 1, result.Imported)
	require.Equal(t, "stub-14", result.BatchID)
}

func TestHandlerImportWorkbookWithoutParser(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	resp, err := http.Post(server.URL+"/ledger/import.xlsx", "multipart/form-data", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandlerExport(t *testing.T) {
	server, _ := newTestServer(t, stubExporter{data: []byte("xlsx-bytes")}, nil)

	resp, err := http.Get(server.URL + "/ledger/export.xlsx")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), "registro_proveedores_depositos.xlsx")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, []byte("xlsx-bytes"), data)
}

func TestHandlerBalanceSeries(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	resp := postJSON(t, server.URL+"/ledger/deliveries", validDeliveryBody())
	resp.Body.Close()

	getResp, err := http.Get(server.URL + "/ledger/balance-series")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	points := decodeBody[[]BalancePointResponse](t, getResp)
	require.Len(t, points, 1)
	require.Equal(t, "2024-01-10", points[0].Date)
	require.InDelta(t, -419.67, points[0].Balance, 0.005)
}

func TestHandlerMonthlyReport(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	resp := postJSON(t, server.URL+"/ledger/deliveries", validDeliveryBody())
	resp.Body.Close()

	getResp, err := http.Get(server.URL + "/ledger/reports/monthly?month=2024-01")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	report := decodeBody[PeriodReportResponse](t, getResp)
	require.Len(t, report.Records, 1)

	badResp, err := http.Get(server.URL + "/ledger/reports/monthly?month=enero")
	require.NoError(t, err)
	defer badResp.Body.Close()
	require.Equal(t, http.StatusBadRequest, badResp.StatusCode)
}

func TestHandlerSetInitialBalance(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	payload, err := json.Marshal(SetInitialBalanceRequest{InitialBalance: -500})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, server.URL+"/ledger/settings/initial-balance", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ledger := decodeBody[LedgerResponse](t, resp)
	require.InDelta(t, -500, ledger.InitialBalance, 1e-9)
	require.InDelta(t, -500, ledger.Deliveries[0].Balance, 1e-9)
}

func TestHandlerCatalogs(t *testing.T) {
	server, _ := newTestServer(t, nil, nil)

	resp, err := http.Get(server.URL + "/ledger/catalogs")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	catalogs := decodeBody[CatalogsResponse](t, resp)
	require.Contains(t, catalogs.Suppliers, "LIRIS SA")
	require.Contains(t, catalogs.Agencies, "Banco Pichincha")
	require.Len(t, catalogs.DocumentTypes, 3)
}
