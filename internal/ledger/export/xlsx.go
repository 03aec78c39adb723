// Package export renders the reconciled ledger as an Excel workbook.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/balanza-erp/balanza-erp/internal/ledger"
)

const (
	sheetRecords    = "Registros"
	sheetDeposits   = "Depositos"
	sheetDebitNotes = "Notas de debito"
)

var recordHeaders = []string{
	"N", "Fecha", "Proveedor", "Producto", "Cantidad",
	"Peso Salida (kg)", "Peso Entrada (kg)", "Tipo Documento",
	"Cantidad de gavetas", "Precio Unitario ($)", "Promedio",
	"Kilos Restantes", "Libras Restantes", "Total ($)",
	"Monto Deposito", "Saldo diario", "Saldo Acumulado",
}

var depositHeaders = []string{"N", "Fecha", "Empresa", "Agencia", "Monto", "Documento"}

var debitNoteHeaders = []string{
	"Fecha", "Libras calculadas", "Descuento", "Descuento posible", "Descuento real",
}

// XLSXExporter builds workbooks from a ledger view. The zero value is usable.
type XLSXExporter struct {
	printer *message.Printer
}

// NewXLSXExporter constructs the exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{printer: message.NewPrinter(language.Spanish)}
}

// Workbook renders the full reconciled state into a three-sheet workbook.
// Monetary columns carry formatted strings so the download matches what the
// tables show on screen.
func (e *XLSXExporter) Workbook(view ledger.View) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRecords); err != nil {
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetDeposits); err != nil {
		return nil, fmt.Errorf("export: add sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetDebitNotes); err != nil {
		return nil, fmt.Errorf("export: add sheet: %w", err)
	}

	if err := e.writeRecords(f, view.Deliveries); err != nil {
		return nil, err
	}
	if err := e.writeDeposits(f, view.Deposits); err != nil {
		return nil, err
	}
	if err := e.writeDebitNotes(f, view.DebitNotes); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("export: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *XLSXExporter) writeRecords(f *excelize.File, deliveries []ledger.DeliveryRecord) error {
	if err := writeRow(f, sheetRecords, 1, toAny(recordHeaders)); err != nil {
		return err
	}
	for i, d := range deliveries {
		row := []any{
			d.Seq,
			ledger.DateKey(d.Date),
			string(d.Supplier),
			d.Product,
			d.Qty,
			d.ExitWeight,
			d.EntryWeight,
			string(d.DocType),
			d.Crates,
			e.money(d.UnitPrice),
			d.Average,
			d.WeightDelta,
			d.ConvertedQty,
			e.money(d.Total),
			e.money(d.DepositAmount),
			e.money(d.DailyNet),
			e.money(d.Balance),
		}
		if d.IsAnchor() {
			// The sentinel carries no operative fields, only the balance.
			row = []any{
				d.Seq, ledger.DateKey(d.Date), string(d.Supplier),
				"", "", "", "", "", "", "", "", "", "", "", "", "",
				e.money(d.Balance),
			}
		}
		if err := writeRow(f, sheetRecords, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (e *XLSXExporter) writeDeposits(f *excelize.File, deposits []ledger.Deposit) error {
	if err := writeRow(f, sheetDeposits, 1, toAny(depositHeaders)); err != nil {
		return err
	}
	for i, d := range deposits {
		row := []any{
			d.Seq,
			ledger.DateKey(d.Date),
			string(d.Counterparty),
			d.Agency,
			e.money(d.Amount),
			string(d.Kind),
		}
		if err := writeRow(f, sheetDeposits, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (e *XLSXExporter) writeDebitNotes(f *excelize.File, notes []ledger.DebitNote) error {
	if err := writeRow(f, sheetDebitNotes, 1, toAny(debitNoteHeaders)); err != nil {
		return err
	}
	for i, n := range notes {
		row := []any{
			ledger.DateKey(n.Date),
			n.LbsComputed,
			n.Rate,
			e.money(n.PossibleDiscount),
			e.money(n.RealDiscount),
		}
		if err := writeRow(f, sheetDebitNotes, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (e *XLSXExporter) money(v float64) string {
	if e.printer == nil {
		e.printer = message.NewPrinter(language.Spanish)
	}
	return e.printer.Sprintf("$%.2f", v)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("export: cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("export: set cell %s: %w", cell, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
