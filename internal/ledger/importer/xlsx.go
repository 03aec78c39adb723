// Package importer parses delivery rows out of uploaded Excel workbooks.
package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/balanza-erp/balanza-erp/internal/ledger"
)

// requiredColumns are the headers an upload must carry. Extra columns are
// ignored so a previously exported workbook can be re-imported as-is.
var requiredColumns = []string{
	"Fecha", "Proveedor", "Producto", "Cantidad",
	"Peso Salida (kg)", "Peso Entrada (kg)", "Tipo Documento",
	"Cantidad de gavetas", "Precio Unitario ($)",
}

// dateLayouts covers the formats spreadsheets commonly hand back.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"01-02-06",
	"2006-01-02 15:04:05",
	"02/01/06",
}

// XLSXParser extracts delivery inputs from the first sheet of a workbook.
type XLSXParser struct{}

// NewXLSXParser constructs the parser.
func NewXLSXParser() *XLSXParser {
	return &XLSXParser{}
}

// Rows reads the upload and returns one input per data row. Rows whose date
// cannot be parsed are dropped, matching how partial spreadsheets are
// cleaned up by hand; any other malformed cell rejects the upload.
func (p *XLSXParser) Rows(r io.Reader) ([]ledger.DeliveryInput, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable workbook: %v", ledger.ErrValidation, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ledger.ErrValidation)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("importer: read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: workbook is empty", ledger.ErrValidation)
	}

	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}

	var inputs []ledger.DeliveryInput
	for i, row := range rows[1:] {
		date, ok := parseDate(cell(row, cols["Fecha"]))
		if !ok {
			continue
		}
		supplier := strings.TrimSpace(cell(row, cols["Proveedor"]))
		if supplier == string(ledger.AnchorParty) {
			continue
		}
		input := ledger.DeliveryInput{
			Date:     date,
			Supplier: ledger.Party(supplier),
			Product:  strings.TrimSpace(cell(row, cols["Producto"])),
			DocType:  ledger.DocumentType(strings.TrimSpace(cell(row, cols["Tipo Documento"]))),
		}
		if input.Qty, err = parseInt(cell(row, cols["Cantidad"])); err != nil {
			return nil, rowErr(i+2, "Cantidad", err)
		}
		if input.ExitWeight, err = parseFloat(cell(row, cols["Peso Salida (kg)"])); err != nil {
			return nil, rowErr(i+2, "Peso Salida (kg)", err)
		}
		if input.EntryWeight, err = parseFloat(cell(row, cols["Peso Entrada (kg)"])); err != nil {
			return nil, rowErr(i+2, "Peso Entrada (kg)", err)
		}
		if input.Crates, err = parseInt(cell(row, cols["Cantidad de gavetas"])); err != nil {
			return nil, rowErr(i+2, "Cantidad de gavetas", err)
		}
		if input.UnitPrice, err = parseFloat(cell(row, cols["Precio Unitario ($)"])); err != nil {
			return nil, rowErr(i+2, "Precio Unitario ($)", err)
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

// BatchID derives a stable idempotency key from the upload bytes, so
// re-posting the same file is recognized as the same batch.
func (p *XLSXParser) BatchID(data []byte) string {
	sum := sha256.Sum256(data)
	return "xlsx-" + hex.EncodeToString(sum[:16])
}

func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns: %s",
			ledger.ErrValidation, strings.Join(missing, ", "))
	}
	return cols, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ledger.Day(t), true
		}
	}
	// Excel stores dates as serial numbers when the cell carries no format.
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return ledger.Day(t), true
		}
	}
	return time.Time{}, false
}

func parseInt(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not a number: %q", ledger.ErrValidation, raw)
	}
	return int64(v), nil
}

func parseFloat(raw string) (float64, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not a number: %q", ledger.ErrValidation, raw)
	}
	return v, nil
}

func rowErr(row int, column string, err error) error {
	return fmt.Errorf("row %d, column %q: %w", row, column, err)
}
