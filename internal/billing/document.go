// Package billing owns invoices and estimates: the customer, the line items,
// the totals, the signature and the status lifecycle of each document.
package billing

import (
	"fmt"
	"math"
	"time"

	"github.com/Simplici0/levelworks/internal/pricing"
)

// Kind distinguishes invoices from estimates.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindEstimate Kind = "estimate"
)

func (k Kind) Valid() bool {
	return k == KindInvoice || k == KindEstimate
}

// Prefix is the document number prefix, e.g. INV for invoices.
func (k Kind) Prefix() string {
	if k == KindEstimate {
		return "EST"
	}
	return "INV"
}

// FormatNumber renders the n-th document number of a kind.
func FormatNumber(k Kind, n int64) string {
	return fmt.Sprintf("%s-%04d", k.Prefix(), n)
}

// Status is a position in the document lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusConverted Status = "converted"
	StatusPaid      Status = "paid"
	StatusVoid      Status = "void"
)

var transitions = map[Kind]map[Status][]Status{
	KindEstimate: {
		StatusDraft:    {StatusSent},
		StatusSent:     {StatusAccepted, StatusDeclined},
		StatusAccepted: {StatusConverted},
	},
	KindInvoice: {
		StatusDraft: {StatusSent, StatusVoid},
		StatusSent:  {StatusPaid, StatusVoid},
	},
}

// CanTransition reports whether a document of kind k may move from one status to another.
func CanTransition(k Kind, from, to Status) bool {
	for _, next := range transitions[k][from] {
		if next == to {
			return true
		}
	}
	return false
}

// Customer is the billed party.
type Customer struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone   string `json:"phone,omitempty" validate:"max=50"`
	Address string `json:"address,omitempty" validate:"max=500"`
}

// PricingSnapshot records the calculator input and output behind a priced item.
type PricingSnapshot struct {
	Input  pricing.JobInput `json:"input"`
	Result pricing.Result   `json:"result"`
	Bound  pricing.Bound    `json:"bound"`
}

// LineItem is one billed row.
type LineItem struct {
	ID          int64            `json:"id"`
	Description string           `json:"description"`
	Quantity    float64          `json:"quantity"`
	UnitPrice   float64          `json:"unit_price"`
	Pricing     *PricingSnapshot `json:"pricing,omitempty"`
}

// Amount is quantity times unit price, rounded to cents.
func (li LineItem) Amount() float64 {
	return RoundCents(li.Quantity * li.UnitPrice)
}

// Signature is the customer's captured sign-off.
type Signature struct {
	SignerName string    `json:"signer_name"`
	ImagePNG   []byte    `json:"image_png"`
	SignedAt   time.Time `json:"signed_at"`
}

// Document is an invoice or an estimate.
type Document struct {
	ID         int64      `json:"id"`
	UUID       string     `json:"uuid"`
	Kind       Kind       `json:"kind"`
	Number     string     `json:"number"`
	Status     Status     `json:"status"`
	Customer   Customer   `json:"customer"`
	Items      []LineItem `json:"items"`
	TaxPercent float64    `json:"tax_percent"`
	Discount   float64    `json:"discount"`
	Notes      string     `json:"notes,omitempty"`
	Signature  *Signature `json:"signature,omitempty"`
	IssuedAt   time.Time  `json:"issued_at"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	// SourceID links an invoice to the estimate it was converted from.
	SourceID  *int64    `json:"source_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Editable reports whether header fields and items may change.
func (d Document) Editable() bool {
	return d.Status == StatusDraft
}

// Signable reports whether a signature may be recorded in the current status.
func (d Document) Signable() bool {
	return d.Status == StatusDraft || d.Status == StatusSent
}

// Deletable reports whether the document may be removed.
func (d Document) Deletable() bool {
	switch d.Status {
	case StatusDraft, StatusVoid, StatusDeclined:
		return true
	}
	return false
}

// Totals is the money roll-up of a document.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Taxable  float64 `json:"taxable"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// Totals sums the line items and applies the discount and tax.
func (d Document) Totals() Totals {
	var subtotal float64
	for _, item := range d.Items {
		subtotal += item.Amount()
	}
	subtotal = RoundCents(subtotal)

	discount := RoundCents(math.Min(d.Discount, subtotal))
	taxable := RoundCents(math.Max(0, subtotal-discount))
	tax := RoundCents(taxable * d.TaxPercent / 100)

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Taxable:  taxable,
		Tax:      tax,
		Total:    RoundCents(taxable + tax),
	}
}

// RoundCents rounds half away from zero to two decimals. The epsilon keeps
// binary representations such as 1.005 (1.00499...) on the expected side.
func RoundCents(v float64) float64 {
	return math.Round(v*100+math.Copysign(1e-6, v)) / 100
}
