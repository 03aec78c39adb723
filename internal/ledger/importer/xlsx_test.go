package importer

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/balanza-erp/balanza-erp/internal/ledger"
)

func buildWorkbook(t *testing.T, header []string, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue("Sheet1", cell, h))
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

var header = []string{
	"Fecha", "Proveedor", "Producto", "Cantidad",
	"Peso Salida (kg)", "Peso Entrada (kg)", "Tipo Documento",
	"Cantidad de gavetas", "Precio Unitario ($)",
}

func TestRowsParsesWorkbook(t *testing.T) {
	data := buildWorkbook(t, header, [][]any{
		{"2024-01-10", "LIRIS SA", "Pollo", 10, 100.5, 20.25, "Factura", 8, 1.25},
		{"2024-01-11", "AVICOLA DEL SUR", "Pollo", 5, 50, 10, "Factura", 4, 1.30},
	})

	inputs, err := NewXLSXParser().Rows(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	first := inputs[0]
	require.Equal(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC), first.Date)
	require.Equal(t, ledger.Party("LIRIS SA"), first.Supplier)
	require.Equal(t, "Pollo", first.Product)
	require.EqualValues(t, 10, first.Qty)
	require.InDelta(t, 100.5, first.ExitWeight, 1e-9)
	require.InDelta(t, 20.25, first.EntryWeight, 1e-9)
	require.Equal(t, ledger.DocInvoice, first.DocType)
	require.EqualValues(t, 8, first.Crates)
	require.InDelta(t, 1.25, first.UnitPrice, 1e-9)
}

func TestRowsSkipsUnparsableDates(t *testing.T) {
	data := buildWorkbook(t, header, [][]any{
		{"no-es-fecha", "LIRIS SA", "Pollo", 10, 100, 20, "Factura", 8, 1.25},
		{"2024-01-11", "AVICOLA DEL SUR", "Pollo", 5, 50, 10, "Factura", 4, 1.30},
	})

	inputs, err := NewXLSXParser().Rows(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Equal(t, ledger.Party("AVICOLA DEL SUR"), inputs[0].Supplier)
}

func TestRowsSkipsAnchorRows(t *testing.T) {
	data := buildWorkbook(t, header, [][]any{
		{"1900-01-01", "BALANCE_INICIAL", "", 0, 0, 0, "", 0, 0},
		{"2024-01-11", "LIRIS SA", "Pollo", 5, 50, 10, "Factura", 4, 1.30},
	})

	inputs, err := NewXLSXParser().Rows(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, inputs, 1)
}

func TestRowsRejectsMissingColumns(t *testing.T) {
	data := buildWorkbook(t, []string{"Fecha", "Proveedor"}, nil)

	_, err := NewXLSXParser().Rows(bytes.NewReader(data))
	require.ErrorIs(t, err, ledger.ErrValidation)
	require.Contains(t, err.Error(), "Producto")
}

func TestRowsRejectsBadNumbers(t *testing.T) {
	data := buildWorkbook(t, header, [][]any{
		{"2024-01-10", "LIRIS SA", "Pollo", "muchos", 100, 20, "Factura", 8, 1.25},
	})

	_, err := NewXLSXParser().Rows(bytes.NewReader(data))
	require.ErrorIs(t, err, ledger.ErrValidation)
	require.Contains(t, err.Error(), "Cantidad")
}

func TestRowsRejectsGarbage(t *testing.T) {
	_, err := NewXLSXParser().Rows(bytes.NewReader([]byte("not a workbook")))
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRowsAcceptsDollarPrefixedPrices(t *testing.T) {
	data := buildWorkbook(t, header, [][]any{
		{"2024-01-10", "LIRIS SA", "Pollo", 10, 100, 20, "Factura", 8, "$1.25"},
	})

	inputs, err := NewXLSXParser().Rows(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.InDelta(t, 1.25, inputs[0].UnitPrice, 1e-9)
}

func TestBatchIDStable(t *testing.T) {
	p := NewXLSXParser()
	a := p.BatchID([]byte("one"))
	b := p.BatchID([]byte("one"))
	c := p.BatchID([]byte("two"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
