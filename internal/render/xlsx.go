package render

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Simplici0/levelworks/internal/billing"
)

const sheetName = "Document"

var moneyFormat = `"$"#,##0.00`

// XLSX renders doc as a single-sheet workbook.
func XLSX(doc billing.Document, biz Business) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := xl.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create bold style: %w", err)
	}
	money, err := xl.NewStyle(&excelize.Style{CustomNumFmt: &moneyFormat})
	if err != nil {
		return nil, fmt.Errorf("create money style: %w", err)
	}

	w := &sheetWriter{xl: xl, row: 1}

	w.set(bold, biz.Name)
	w.set(0, joinNonEmpty(" | ", biz.Phone, biz.Email))
	w.set(0, biz.Address)
	w.row++

	w.set(bold, Title(doc))
	w.set(0, "Status", string(doc.Status))
	if !doc.IssuedAt.IsZero() {
		w.set(0, "Issued", formatDate(doc.IssuedAt))
	}
	if doc.DueAt != nil {
		w.set(0, "Due", formatDate(*doc.DueAt))
	}
	w.row++

	w.set(bold, "Bill to", doc.Customer.Name)
	for _, line := range []string{doc.Customer.Email, doc.Customer.Phone, doc.Customer.Address} {
		if line != "" {
			w.set(0, "", line)
		}
	}
	w.row++

	w.set(0, "Description", "Quantity", "Unit price", "Amount")
	w.style(bold, "A", "D")
	for _, item := range doc.Items {
		w.set(0, item.Description, item.Quantity, item.UnitPrice, item.Amount())
		w.style(money, "C", "D")
	}
	w.row++

	t := doc.Totals()
	totals := []struct {
		label string
		value float64
	}{
		{"Subtotal", t.Subtotal},
		{"Discount", t.Discount},
		{"Tax", t.Tax},
		{"Total", t.Total},
	}
	for _, line := range totals {
		w.set(0, line.label, "", "", line.value)
		w.style(money, "D", "D")
	}

	if doc.Notes != "" {
		w.row++
		w.set(bold, "Notes")
		w.set(0, doc.Notes)
	}
	if doc.Signature != nil {
		w.row++
		w.set(0, "Signed by", doc.Signature.SignerName, formatDate(doc.Signature.SignedAt))
	}

	if w.err != nil {
		return nil, w.err
	}
	if err := xl.SetColWidth(sheetName, "A", "A", 48); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := xl.SetColWidth(sheetName, "B", "D", 16); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter appends rows and keeps the first error.
type sheetWriter struct {
	xl  *excelize.File
	row int
	err error
}

func (w *sheetWriter) set(style int, values ...any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		w.err = err
		return
	}
	if err := w.xl.SetSheetRow(sheetName, cell, &values); err != nil {
		w.err = fmt.Errorf("write row %d: %w", w.row, err)
		return
	}
	if style != 0 {
		w.styleRow(style, "A", "A")
	}
	w.row++
}

// style applies to the row just written.
func (w *sheetWriter) style(style int, fromCol, toCol string) {
	w.row--
	w.styleRow(style, fromCol, toCol)
	w.row++
}

func (w *sheetWriter) styleRow(style int, fromCol, toCol string) {
	if w.err != nil {
		return
	}
	from := fmt.Sprintf("%s%d", fromCol, w.row)
	to := fmt.Sprintf("%s%d", toCol, w.row)
	if err := w.xl.SetCellStyle(sheetName, from, to, style); err != nil {
		w.err = fmt.Errorf("style %s:%s: %w", from, to, err)
	}
}
