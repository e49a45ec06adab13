package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Simplici0/levelworks/internal/billing"
)

var testBusiness = Business{
	Name:    "Acme Leveling",
	Phone:   "555-0100",
	Email:   "office@acme.test",
	Address: "12 Main St",
}

func sampleInvoice() billing.Document {
	issued := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	due := issued.AddDate(0, 0, 30)
	return billing.Document{
		Kind:     billing.KindInvoice,
		Number:   "INV-0007",
		Status:   billing.StatusSent,
		Customer: billing.Customer{Name: "Dana Ruiz", Email: "dana@example.com"},
		Items: []billing.LineItem{
			{Description: "Lift driveway", Quantity: 1, UnitPrice: 1200},
			{Description: "Seal joints", Quantity: 2.5, UnitPrice: 40},
		},
		TaxPercent: 10,
		Discount:   100,
		Notes:      "Pay within 30 days",
		IssuedAt:   issued,
		DueAt:      &due,
	}
}

func TestMoney(t *testing.T) {
	tests := map[float64]string{
		0:       "$0.00",
		5:       "$5.00",
		1234.5:  "$1,234.50",
		1e6:     "$1,000,000.00",
		-42.125: "-$42.13",
	}
	for in, want := range tests {
		assert.Equal(t, want, Money(in), "Money(%v)", in)
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "INV-0007.xlsx", Filename(sampleInvoice(), "xlsx"))
	assert.Equal(t, "INV-0007.txt", Filename(sampleInvoice(), ".txt"))
	assert.Equal(t, "estimate.txt", Filename(billing.Document{Kind: billing.KindEstimate}, "txt"))
}

func TestText(t *testing.T) {
	out := Text(sampleInvoice(), testBusiness)

	for _, want := range []string{
		"Acme Leveling\n555-0100 | office@acme.test\n12 Main St\n",
		"INVOICE INV-0007\n",
		"Status: sent\n",
		"Issued: May 1, 2024\n",
		"Due: May 31, 2024\n",
		"Bill to:\nDana Ruiz\ndana@example.com\n",
		"  1. Lift driveway\n     1 x $1,200.00 = $1,200.00\n",
		"  2. Seal joints\n     2.5 x $40.00 = $100.00\n",
		"Subtotal: $1,300.00\n",
		"Discount: -$100.00\n",
		"Tax (10%): $120.00\n",
		"Total: $1,320.00\n",
		"Notes:\nPay within 30 days\n",
		"Signature: ____",
	} {
		assert.Contains(t, out, want)
	}
}

func TestText_SignedEstimateWithoutExtras(t *testing.T) {
	doc := billing.Document{
		Kind:     billing.KindEstimate,
		Number:   "EST-0002",
		Status:   billing.StatusAccepted,
		Customer: billing.Customer{Name: "Lee"},
		Signature: &billing.Signature{
			SignerName: "Lee",
			SignedAt:   time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC),
		},
	}

	out := Text(doc, Business{Name: "Acme"})
	assert.Contains(t, out, "ESTIMATE EST-0002\n")
	assert.Contains(t, out, "(none)")
	assert.Contains(t, out, "Signed by Lee on Jul 4, 2024\n")
	assert.NotContains(t, out, "Discount")
	assert.NotContains(t, out, "Tax (")
	assert.NotContains(t, out, "Notes:")
}

func TestXLSX(t *testing.T) {
	data, err := XLSX(sampleInvoice(), testBusiness)
	require.NoError(t, err)

	xl, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer xl.Close()

	assert.Equal(t, []string{sheetName}, xl.GetSheetList())

	rows, err := xl.GetRows(sheetName, excelize.Options{RawCellValue: true})
	require.NoError(t, err)

	find := func(label string) []string {
		for _, r := range rows {
			if len(r) > 0 && r[0] == label {
				return r
			}
		}
		t.Fatalf("row %q not found in %v", label, rows)
		return nil
	}

	assert.Equal(t, "Acme Leveling", rows[0][0])
	assert.Equal(t, "Invoice INV-0007", find("Invoice INV-0007")[0])
	assert.Equal(t, "Dana Ruiz", find("Bill to")[1])
	assert.Equal(t, []string{"Description", "Quantity", "Unit price", "Amount"}, find("Description"))

	seal := find("Seal joints")
	assert.Equal(t, []string{"Seal joints", "2.5", "40", "100"}, seal)

	assert.Equal(t, "1300", find("Subtotal")[3])
	assert.Equal(t, "1320", find("Total")[3])
	assert.True(t, strings.Contains(find("Notes")[0], "Notes"))
}
