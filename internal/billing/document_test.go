package billing

import "testing"

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(KindInvoice, 1); got != "INV-0001" {
		t.Fatalf("FormatNumber(invoice, 1)=%q", got)
	}
	if got := FormatNumber(KindEstimate, 12345); got != "EST-12345" {
		t.Fatalf("FormatNumber(estimate, 12345)=%q", got)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		kind     Kind
		from, to Status
		want     bool
	}{
		{KindEstimate, StatusDraft, StatusSent, true},
		{KindEstimate, StatusSent, StatusAccepted, true},
		{KindEstimate, StatusSent, StatusDeclined, true},
		{KindEstimate, StatusAccepted, StatusConverted, true},
		{KindEstimate, StatusDraft, StatusAccepted, false},
		{KindEstimate, StatusDeclined, StatusSent, false},
		{KindEstimate, StatusSent, StatusPaid, false},
		{KindInvoice, StatusDraft, StatusSent, true},
		{KindInvoice, StatusDraft, StatusVoid, true},
		{KindInvoice, StatusSent, StatusPaid, true},
		{KindInvoice, StatusSent, StatusVoid, true},
		{KindInvoice, StatusPaid, StatusVoid, false},
		{KindInvoice, StatusDraft, StatusPaid, false},
		{KindInvoice, StatusSent, StatusAccepted, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.kind, tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s, %s)=%v, want %v", tc.kind, tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDocumentTotals(t *testing.T) {
	doc := Document{
		Items: []LineItem{
			{Description: "Lift", Quantity: 1, UnitPrice: 2010.33},
			{Description: "Caulk joints", Quantity: 3, UnitPrice: 12.5},
		},
		Discount:   100,
		TaxPercent: 8.25,
	}

	got := doc.Totals()
	want := Totals{Subtotal: 2047.83, Discount: 100, Taxable: 1947.83, Tax: 160.70, Total: 2108.53}
	if got != want {
		t.Fatalf("Totals()=%+v, want %+v", got, want)
	}
}

func TestDocumentTotals_DiscountCappedAtSubtotal(t *testing.T) {
	doc := Document{
		Items:      []LineItem{{Description: "Patch", Quantity: 1, UnitPrice: 50}},
		Discount:   80,
		TaxPercent: 10,
	}

	got := doc.Totals()
	if got.Discount != 50 || got.Taxable != 0 || got.Tax != 0 || got.Total != 0 {
		t.Fatalf("unexpected totals: %+v", got)
	}
}

func TestRoundCents(t *testing.T) {
	tests := map[float64]float64{
		1.005:   1.01,
		2.675:   2.68,
		-1.005:  -1.01,
		10:      10,
		0.12499: 0.12,
	}
	for in, want := range tests {
		if got := RoundCents(in); got != want {
			t.Errorf("RoundCents(%v)=%v, want %v", in, got, want)
		}
	}
}

func TestDocumentPermissions(t *testing.T) {
	draft := Document{Status: StatusDraft}
	if !draft.Editable() || !draft.Signable() || !draft.Deletable() {
		t.Fatalf("draft must be editable, signable and deletable")
	}

	sent := Document{Status: StatusSent}
	if sent.Editable() || !sent.Signable() || sent.Deletable() {
		t.Fatalf("sent document must only be signable")
	}

	paid := Document{Status: StatusPaid}
	if paid.Editable() || paid.Signable() || paid.Deletable() {
		t.Fatalf("paid invoice must be locked")
	}

	void := Document{Status: StatusVoid}
	if !void.Deletable() {
		t.Fatalf("void invoice must be deletable")
	}
}
