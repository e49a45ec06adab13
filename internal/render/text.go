// Package render turns documents into plain text and spreadsheets.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Simplici0/levelworks/internal/billing"
)

const dateLayout = "Jan 2, 2006"

// Business is the issuer printed in every document header.
type Business struct {
	Name    string
	Phone   string
	Email   string
	Address string
}

// Money formats an amount as dollars with thousands separators, e.g. $1,234.50.
func Money(v float64) string {
	cents := int64(math.Round(billing.RoundCents(math.Abs(v)) * 100))
	s := humanize.Comma(cents/100) + fmt.Sprintf(".%02d", cents%100)
	if v < 0 && cents > 0 {
		return "-$" + s
	}
	return "$" + s
}

// Title is the heading of a document, e.g. "Invoice INV-0001".
func Title(doc billing.Document) string {
	kind := "Invoice"
	if doc.Kind == billing.KindEstimate {
		kind = "Estimate"
	}
	if doc.Number == "" {
		return kind
	}
	return kind + " " + doc.Number
}

// Filename names an export of doc, e.g. INV-0001.xlsx.
func Filename(doc billing.Document, ext string) string {
	base := doc.Number
	if base == "" {
		base = string(doc.Kind)
	}
	if base == "" {
		base = "document"
	}
	return base + "." + strings.TrimPrefix(ext, ".")
}

// Text renders doc as plain text for email bodies and manual copying.
func Text(doc billing.Document, biz Business) string {
	var b strings.Builder

	writeLines(&b, biz.Name, joinNonEmpty(" | ", biz.Phone, biz.Email), biz.Address)
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s\n", strings.ToUpper(Title(doc)))
	fmt.Fprintf(&b, "Status: %s\n", doc.Status)
	if !doc.IssuedAt.IsZero() {
		fmt.Fprintf(&b, "Issued: %s\n", formatDate(doc.IssuedAt))
	}
	if doc.DueAt != nil {
		fmt.Fprintf(&b, "Due: %s\n", formatDate(*doc.DueAt))
	}
	b.WriteString("\n")

	b.WriteString("Bill to:\n")
	writeLines(&b, doc.Customer.Name, doc.Customer.Email, doc.Customer.Phone, doc.Customer.Address)
	b.WriteString("\n")

	b.WriteString("Items:\n")
	if len(doc.Items) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, item := range doc.Items {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, item.Description)
		fmt.Fprintf(&b, "     %s x %s = %s\n", formatQuantity(item.Quantity), Money(item.UnitPrice), Money(item.Amount()))
	}
	b.WriteString("\n")

	t := doc.Totals()
	fmt.Fprintf(&b, "Subtotal: %s\n", Money(t.Subtotal))
	if t.Discount > 0 {
		fmt.Fprintf(&b, "Discount: -%s\n", Money(t.Discount))
	}
	if doc.TaxPercent > 0 {
		fmt.Fprintf(&b, "Tax (%s%%): %s\n", formatQuantity(doc.TaxPercent), Money(t.Tax))
	}
	fmt.Fprintf(&b, "Total: %s\n", Money(t.Total))

	if doc.Notes != "" {
		fmt.Fprintf(&b, "\nNotes:\n%s\n", doc.Notes)
	}

	b.WriteString("\n")
	if doc.Signature != nil {
		fmt.Fprintf(&b, "Signed by %s on %s\n", doc.Signature.SignerName, formatDate(doc.Signature.SignedAt))
	} else {
		b.WriteString("Signature: ______________________________\n")
	}

	return b.String()
}

func writeLines(b *strings.Builder, lines ...string) {
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			b.WriteString(l)
			b.WriteString("\n")
		}
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
