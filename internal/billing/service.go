package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simplici0/levelworks/internal/pricing"
)

// Repository persists documents. Implementations allocate IDs, numbers and
// line item IDs and report missing rows as ErrNotFound.
type Repository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, filter Filter) ([]Document, error)
	// UpdateDocument replaces the header, items and signature of doc.
	UpdateDocument(ctx context.Context, doc *Document) error
	DeleteDocument(ctx context.Context, id int64) error
	// ConvertEstimate stores the converted estimate and creates the invoice atomically.
	ConvertEstimate(ctx context.Context, estimate *Document, invoice *Document) error
	// ImportDocuments creates every document or none of them.
	ImportDocuments(ctx context.Context, docs []*Document) error
}

// Observer receives business events; *metrics.Metrics satisfies it.
type Observer interface {
	ObserveDocumentCreated(kind string)
	ObserveCalculation(outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveDocumentCreated(string) {}
func (nopObserver) ObserveCalculation(string)     {}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Kind   Kind
	Status Status
	// Query matches the number, the customer name or the notes.
	Query string
}

// ItemInput is a manually entered line item.
type ItemInput struct {
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

// Draft carries the editable fields of a document.
type Draft struct {
	Kind       Kind        `json:"kind" validate:"required,oneof=invoice estimate"`
	Customer   Customer    `json:"customer"`
	Items      []ItemInput `json:"items" validate:"dive"`
	TaxPercent float64     `json:"tax_percent" validate:"gte=0,lte=100"`
	Discount   float64     `json:"discount" validate:"gte=0"`
	Notes      string      `json:"notes,omitempty" validate:"max=4000"`
	IssuedAt   *time.Time  `json:"issued_at,omitempty"`
	DueAt      *time.Time  `json:"due_at,omitempty"`
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// Service implements the invoice and estimate workflows.
type Service struct {
	repo     Repository
	log      *zap.Logger
	validate *validator.Validate
	observer Observer
	now      func() time.Time
}

func NewService(repo Repository, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		repo:     repo,
		log:      log,
		validate: newValidator(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, d Draft) (Document, error) {
	d = trimDraft(d)
	if err := s.validateDraft(d); err != nil {
		return Document{}, err
	}

	now := s.now().UTC()
	doc := Document{
		UUID:      uuid.NewString(),
		Kind:      d.Kind,
		Status:    StatusDraft,
		CreatedAt: now,
	}
	applyDraft(&doc, d, now)

	if err := s.repo.CreateDocument(ctx, &doc); err != nil {
		return Document{}, fmt.Errorf("create %s: %w", d.Kind, err)
	}

	s.observer.ObserveDocumentCreated(string(doc.Kind))
	s.log.Info("document created",
		zap.Int64("id", doc.ID),
		zap.String("kind", string(doc.Kind)),
		zap.String("number", doc.Number),
	)
	return doc, nil
}

// ImportEntry is one document restored from a backup. Label prefixes the
// keys of its validation errors, e.g. "invoices[2]".
type ImportEntry struct {
	Label  string
	Draft  Draft
	Status Status
}

// Import validates every entry before storing any, then creates them in one
// transaction. Backup numbers are not kept; the repository allocates fresh ones.
func (s *Service) Import(ctx context.Context, entries []ImportEntry) ([]Document, error) {
	now := s.now().UTC()
	docs := make([]*Document, 0, len(entries))
	fields := map[string]string{}

	for i, e := range entries {
		label := e.Label
		if label == "" {
			label = fmt.Sprintf("documents[%d]", i)
		}

		d := trimDraft(e.Draft)
		status := e.Status
		if status == "" {
			status = StatusDraft
		}
		if err := s.validateDraft(d); err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				return nil, err
			}
			for k, msg := range verr.Fields {
				fields[label+"."+k] = msg
			}
			continue
		}
		if !knownStatus(d.Kind, status) {
			fields[label+".status"] = fmt.Sprintf("status %q is not valid for %s", status, d.Kind)
			continue
		}

		doc := &Document{
			UUID:      uuid.NewString(),
			Kind:      d.Kind,
			Status:    status,
			CreatedAt: now,
		}
		applyDraft(doc, d, now)
		docs = append(docs, doc)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if err := s.repo.ImportDocuments(ctx, docs); err != nil {
		return nil, fmt.Errorf("import documents: %w", err)
	}

	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		s.observer.ObserveDocumentCreated(string(doc.Kind))
		out = append(out, *doc)
	}
	s.log.Info("documents imported", zap.Int("count", len(out)))
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Document, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"kind": "kind must be one of: invoice estimate"}}
	}
	f.Query = strings.TrimSpace(f.Query)
	return s.repo.ListDocuments(ctx, f)
}

// Update replaces the editable fields of a draft. The kind cannot change.
func (s *Service) Update(ctx context.Context, id int64, d Draft) (Document, error) {
	doc, err := s.editable(ctx, id)
	if err != nil {
		return Document{}, err
	}

	if d.Kind == "" {
		d.Kind = doc.Kind
	}
	if d.Kind != doc.Kind {
		return Document{}, &ValidationError{Fields: map[string]string{"kind": "kind cannot change"}}
	}
	d = trimDraft(d)
	if err := s.validateDraft(d); err != nil {
		return Document{}, err
	}

	applyDraft(&doc, d, s.now().UTC())
	if err := s.repo.UpdateDocument(ctx, &doc); err != nil {
		return Document{}, fmt.Errorf("update document %d: %w", id, err)
	}
	return doc, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if !doc.Deletable() {
		return fmt.Errorf("%w: cannot delete a %s %s", ErrNotEditable, doc.Status, doc.Kind)
	}
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	s.log.Info("document deleted", zap.Int64("id", id), zap.String("number", doc.Number))
	return nil
}

func (s *Service) AddLineItem(ctx context.Context, id int64, in ItemInput) (Document, error) {
	in = trimItem(in)
	if err := validateStruct(s.validate, in); err != nil {
		return Document{}, err
	}
	doc, err := s.editable(ctx, id)
	if err != nil {
		return Document{}, err
	}

	doc.Items = append(doc.Items, newLineItem(in))
	return s.save(ctx, doc)
}

func (s *Service) RemoveLineItem(ctx context.Context, id, itemID int64) (Document, error) {
	doc, err := s.editable(ctx, id)
	if err != nil {
		return Document{}, err
	}

	idx := -1
	for i, item := range doc.Items {
		if item.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Document{}, fmt.Errorf("%w: item %d on document %d", ErrItemNotFound, itemID, id)
	}

	doc.Items = append(doc.Items[:idx], doc.Items[idx+1:]...)
	return s.save(ctx, doc)
}

// AddPricedItem runs the calculator and appends the job as a single line item
// priced at the chosen bound of the estimated range.
func (s *Service) AddPricedItem(ctx context.Context, id int64, in pricing.JobInput, bound pricing.Bound, rates pricing.Rates) (Document, error) {
	doc, err := s.editable(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if bound == "" {
		bound = pricing.BoundMid
	}

	in = pricing.WithDefaultBounds(in, rates)
	result, err := pricing.Calculate(in, rates)
	s.observer.ObserveCalculation(pricing.Outcome(err))
	if err != nil {
		return Document{}, err
	}

	doc.Items = append(doc.Items, LineItem{
		Description: pricing.Describe(in),
		Quantity:    1,
		UnitPrice:   RoundCents(result.Amount(bound)),
		Pricing:     &PricingSnapshot{Input: in, Result: result, Bound: bound},
	})
	return s.save(ctx, doc)
}

// Sign records the customer signature. Signing a sent estimate accepts it.
func (s *Service) Sign(ctx context.Context, id int64, in SignatureInput) (Document, error) {
	in.SignerName = strings.TrimSpace(in.SignerName)
	in.Image = strings.TrimSpace(in.Image)
	if err := validateStruct(s.validate, in); err != nil {
		return Document{}, err
	}
	img, err := decodeSignature(in.Image)
	if err != nil {
		return Document{}, err
	}

	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !doc.Signable() {
		return Document{}, fmt.Errorf("%w: cannot sign a %s %s", ErrNotEditable, doc.Status, doc.Kind)
	}

	doc.Signature = &Signature{
		SignerName: in.SignerName,
		ImagePNG:   img,
		SignedAt:   s.now().UTC(),
	}
	if doc.Kind == KindEstimate && doc.Status == StatusSent {
		doc.Status = StatusAccepted
	}
	return s.save(ctx, doc)
}

// Transition moves a document along its lifecycle. Conversion goes through
// ConvertToInvoice.
func (s *Service) Transition(ctx context.Context, id int64, to Status) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if to == StatusConverted || !CanTransition(doc.Kind, doc.Status, to) {
		return Document{}, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, doc.Kind, doc.Status, to)
	}

	from := doc.Status
	doc.Status = to
	doc, err = s.save(ctx, doc)
	if err != nil {
		return Document{}, err
	}
	s.log.Info("document status changed",
		zap.Int64("id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return doc, nil
}

// ConvertToInvoice turns an accepted estimate into a new draft invoice.
func (s *Service) ConvertToInvoice(ctx context.Context, estimateID int64) (Document, error) {
	est, err := s.repo.GetDocument(ctx, estimateID)
	if err != nil {
		return Document{}, err
	}
	if est.Kind != KindEstimate || !CanTransition(est.Kind, est.Status, StatusConverted) {
		return Document{}, fmt.Errorf("%w: cannot convert a %s %s", ErrInvalidTransition, est.Status, est.Kind)
	}

	now := s.now().UTC()
	sourceID := est.ID
	inv := Document{
		UUID:       uuid.NewString(),
		Kind:       KindInvoice,
		Status:     StatusDraft,
		Customer:   est.Customer,
		Items:      make([]LineItem, 0, len(est.Items)),
		TaxPercent: est.TaxPercent,
		Discount:   est.Discount,
		Notes:      est.Notes,
		IssuedAt:   now,
		SourceID:   &sourceID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, item := range est.Items {
		item.ID = 0
		if item.Pricing != nil {
			snap := *item.Pricing
			item.Pricing = &snap
		}
		inv.Items = append(inv.Items, item)
	}

	est.Status = StatusConverted
	est.UpdatedAt = now
	if err := s.repo.ConvertEstimate(ctx, &est, &inv); err != nil {
		return Document{}, fmt.Errorf("convert estimate %d: %w", estimateID, err)
	}

	s.observer.ObserveDocumentCreated(string(inv.Kind))
	s.log.Info("estimate converted",
		zap.String("estimate", est.Number),
		zap.String("invoice", inv.Number),
	)
	return inv, nil
}

func (s *Service) editable(ctx context.Context, id int64) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !doc.Editable() {
		return Document{}, fmt.Errorf("%w: %s %s is %s", ErrNotEditable, doc.Kind, doc.Number, doc.Status)
	}
	return doc, nil
}

func (s *Service) save(ctx context.Context, doc Document) (Document, error) {
	doc.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateDocument(ctx, &doc); err != nil {
		return Document{}, fmt.Errorf("update document %d: %w", doc.ID, err)
	}
	return doc, nil
}

func (s *Service) validateDraft(d Draft) error {
	if err := validateStruct(s.validate, d); err != nil {
		return err
	}
	if d.IssuedAt != nil && d.DueAt != nil && d.DueAt.Before(*d.IssuedAt) {
		return &ValidationError{Fields: map[string]string{"due_at": "due_at must not be before issued_at"}}
	}
	return nil
}

// trimDraft strips surrounding whitespace so blank values fail validation
// instead of being stored empty. The caller's item slice is not modified.
func trimDraft(d Draft) Draft {
	d.Customer = Customer{
		Name:    strings.TrimSpace(d.Customer.Name),
		Email:   strings.TrimSpace(d.Customer.Email),
		Phone:   strings.TrimSpace(d.Customer.Phone),
		Address: strings.TrimSpace(d.Customer.Address),
	}
	d.Notes = strings.TrimSpace(d.Notes)
	if d.Items != nil {
		items := make([]ItemInput, len(d.Items))
		for i, in := range d.Items {
			items[i] = trimItem(in)
		}
		d.Items = items
	}
	return d
}

func trimItem(in ItemInput) ItemInput {
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func applyDraft(doc *Document, d Draft, now time.Time) {
	doc.Customer = d.Customer

	// Items keep their IDs and pricing snapshots when the description,
	// quantity and price are resubmitted unchanged.
	existing := doc.Items
	doc.Items = make([]LineItem, 0, len(d.Items))
	for i, in := range d.Items {
		item := newLineItem(in)
		if i < len(existing) && sameItem(existing[i], item) {
			item = existing[i]
		}
		doc.Items = append(doc.Items, item)
	}

	doc.TaxPercent = d.TaxPercent
	doc.Discount = d.Discount
	doc.Notes = d.Notes
	switch {
	case d.IssuedAt != nil:
		doc.IssuedAt = d.IssuedAt.UTC()
	case doc.IssuedAt.IsZero():
		doc.IssuedAt = now
	}
	doc.DueAt = nil
	if d.DueAt != nil {
		due := d.DueAt.UTC()
		doc.DueAt = &due
	}
	doc.UpdatedAt = now
}

func newLineItem(in ItemInput) LineItem {
	return LineItem{
		Description: in.Description,
		Quantity:    in.Quantity,
		UnitPrice:   RoundCents(in.UnitPrice),
	}
}

func sameItem(a, b LineItem) bool {
	return a.Description == b.Description && a.Quantity == b.Quantity && a.UnitPrice == b.UnitPrice
}

func knownStatus(k Kind, st Status) bool {
	if st == StatusDraft {
		return true
	}
	for from, next := range transitions[k] {
		if from == st {
			return true
		}
		for _, to := range next {
			if to == st {
				return true
			}
		}
	}
	return false
}
