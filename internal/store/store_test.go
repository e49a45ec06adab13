package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/levelworks/internal/billing"
	"github.com/Simplici0/levelworks/internal/db"
	"github.com/Simplici0/levelworks/internal/migrations"
	"github.com/Simplici0/levelworks/internal/pricing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "store-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, migrations.Up(database))
	return New(database)
}

func sampleDocument(kind billing.Kind, name string, created time.Time) *billing.Document {
	return &billing.Document{
		UUID:       name + "-" + string(kind) + created.Format("150405.000"),
		Kind:       kind,
		Status:     billing.StatusDraft,
		Customer:   billing.Customer{Name: name, Email: "c@example.com"},
		TaxPercent: 8.25,
		Discount:   10,
		Notes:      "side gate",
		IssuedAt:   created,
		CreatedAt:  created,
		UpdatedAt:  created,
		Items: []billing.LineItem{
			{Description: "Lift porch", Quantity: 1, UnitPrice: 950.5},
			{Description: "Seal joints", Quantity: 12, UnitPrice: 3},
		},
	}
}

func TestCreateAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)

	doc := sampleDocument(billing.KindInvoice, "Ana", now)
	due := now.Add(30 * 24 * time.Hour)
	doc.DueAt = &due
	doc.Items[0].Pricing = &billing.PricingSnapshot{
		Input:  pricing.JobInput{Length: 10, Width: 20, LiftInches: 1},
		Result: pricing.Result{SquareFootage: 200},
		Bound:  pricing.BoundMid,
	}
	require.NoError(t, s.CreateDocument(ctx, doc))

	assert.NotZero(t, doc.ID)
	assert.Equal(t, "INV-0001", doc.Number)
	assert.NotZero(t, doc.Items[0].ID)
	assert.NotZero(t, doc.Items[1].ID)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Number, got.Number)
	assert.Equal(t, doc.Customer, got.Customer)
	assert.Equal(t, 8.25, got.TaxPercent)
	assert.True(t, got.IssuedAt.Equal(now))
	require.NotNil(t, got.DueAt)
	assert.True(t, got.DueAt.Equal(due))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Lift porch", got.Items[0].Description)
	require.NotNil(t, got.Items[0].Pricing)
	assert.Equal(t, 200.0, got.Items[0].Pricing.Result.SquareFootage)
	assert.Nil(t, got.Items[1].Pricing)
	assert.Nil(t, got.Signature)
}

func TestNumbersArePerKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var numbers []string
	for i, kind := range []billing.Kind{billing.KindInvoice, billing.KindEstimate, billing.KindInvoice, billing.KindEstimate, billing.KindEstimate} {
		doc := sampleDocument(kind, "n", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.CreateDocument(ctx, doc))
		numbers = append(numbers, doc.Number)
	}
	assert.Equal(t, []string{"INV-0001", "EST-0001", "INV-0002", "EST-0002", "EST-0003"}, numbers)
}

func TestGetDocument_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDocument(context.Background(), 42)
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestUpdateDocument_ReplacesItemsAndSignature(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)

	doc := sampleDocument(billing.KindEstimate, "Ben", now)
	require.NoError(t, s.CreateDocument(ctx, doc))
	keptID := doc.Items[1].ID

	doc.Items = []billing.LineItem{doc.Items[1], {Description: "Mudjack steps", Quantity: 2, UnitPrice: 400}}
	doc.Status = billing.StatusSent
	doc.Signature = &billing.Signature{SignerName: "Ben", ImagePNG: []byte{0x89, 'P', 'N', 'G'}, SignedAt: now}
	require.NoError(t, s.UpdateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusSent, got.Status)
	require.Len(t, got.Items, 2)
	assert.Equal(t, keptID, got.Items[0].ID)
	assert.Equal(t, "Mudjack steps", got.Items[1].Description)
	require.NotNil(t, got.Signature)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got.Signature.ImagePNG)

	got.Signature = nil
	require.NoError(t, s.UpdateDocument(ctx, &got))
	again, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, again.Signature)

	missing := sampleDocument(billing.KindEstimate, "x", now)
	missing.ID = 999
	assert.ErrorIs(t, s.UpdateDocument(ctx, missing), billing.ErrNotFound)
}

func TestListDocuments_FiltersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	first := sampleDocument(billing.KindInvoice, "Primera Casa", base)
	second := sampleDocument(billing.KindEstimate, "Segunda", base.Add(24*time.Hour))
	second.Notes = "urgente para casa"
	third := sampleDocument(billing.KindInvoice, "Tercera", base.Add(48*time.Hour))
	for _, d := range []*billing.Document{first, second, third} {
		require.NoError(t, s.CreateDocument(ctx, d))
	}

	all, err := s.ListDocuments(ctx, billing.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Tercera", all[0].Customer.Name)
	assert.Equal(t, "Primera Casa", all[2].Customer.Name)
	assert.Len(t, all[0].Items, 2, "items are loaded for listed documents")

	invoices, err := s.ListDocuments(ctx, billing.Filter{Kind: billing.KindInvoice})
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	byQuery, err := s.ListDocuments(ctx, billing.Filter{Query: "casa"})
	require.NoError(t, err)
	assert.Len(t, byQuery, 2, "matches customer name and notes")

	byNumber, err := s.ListDocuments(ctx, billing.Filter{Query: "EST-0001"})
	require.NoError(t, err)
	require.Len(t, byNumber, 1)
	assert.Equal(t, "Segunda", byNumber[0].Customer.Name)

	none, err := s.ListDocuments(ctx, billing.Filter{Status: billing.StatusPaid})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListDocuments_QueryMatchesWildcardsLiterally(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	percent := sampleDocument(billing.KindInvoice, "Kim", now)
	percent.Notes = "50% deposit"
	plain := sampleDocument(billing.KindInvoice, "Lee", now.Add(time.Second))
	plain.Notes = "500 deposit"
	for _, d := range []*billing.Document{percent, plain} {
		require.NoError(t, s.CreateDocument(ctx, d))
	}

	got, err := s.ListDocuments(ctx, billing.Filter{Query: "50%"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Kim", got[0].Customer.Name)

	got, err = s.ListDocuments(ctx, billing.Filter{Query: "5_0"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteDocument_CascadesChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument(billing.KindInvoice, "Cy", time.Now().UTC())
	require.NoError(t, s.CreateDocument(ctx, doc))
	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM line_items WHERE document_id = ?`, doc.ID).Scan(&n))
	assert.Zero(t, n)

	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), billing.ErrNotFound)
}

func TestConvertEstimate_IsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	est := sampleDocument(billing.KindEstimate, "Dee", now)
	require.NoError(t, s.CreateDocument(ctx, est))

	est.Status = billing.StatusConverted
	sourceID := est.ID
	inv := sampleDocument(billing.KindInvoice, "Dee", now)
	inv.SourceID = &sourceID
	require.NoError(t, s.ConvertEstimate(ctx, est, inv))

	got, err := s.GetDocument(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", got.Number)
	require.NotNil(t, got.SourceID)
	assert.Equal(t, est.ID, *got.SourceID)

	// A failing invoice insert leaves the estimate untouched.
	est2 := sampleDocument(billing.KindEstimate, "Eve", now)
	require.NoError(t, s.CreateDocument(ctx, est2))
	est2.Status = billing.StatusConverted
	dup := sampleDocument(billing.KindInvoice, "Eve", now)
	dup.UUID = inv.UUID
	require.Error(t, s.ConvertEstimate(ctx, est2, dup))

	reloaded, err := s.GetDocument(ctx, est2.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusDraft, reloaded.Status)
}

func TestImportDocuments_AllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := sampleDocument(billing.KindEstimate, "Fay", now)
	second := sampleDocument(billing.KindInvoice, "Gus", now)
	require.NoError(t, s.ImportDocuments(ctx, []*billing.Document{first, second}))
	assert.Equal(t, "EST-0001", first.Number)
	assert.Equal(t, "INV-0001", second.Number)

	third := sampleDocument(billing.KindInvoice, "Hal", now)
	dup := sampleDocument(billing.KindInvoice, "Ida", now)
	dup.UUID = second.UUID
	require.Error(t, s.ImportDocuments(ctx, []*billing.Document{third, dup}))

	docs, err := s.ListDocuments(ctx, billing.Filter{})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	next := sampleDocument(billing.KindInvoice, "Jo", now)
	require.NoError(t, s.CreateDocument(ctx, next))
	assert.Equal(t, "INV-0002", next.Number, "a rolled back import does not consume numbers")
}

func TestRatesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadRates(ctx)
	assert.ErrorIs(t, err, ErrRatesNotSeeded)

	rates := pricing.DefaultRates()
	rates.ComplexityFactors = pricing.ExtendedComplexity()
	rates.BaseFee = 175
	require.NoError(t, s.SaveRates(ctx, rates))

	got, err := s.LoadRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, rates, got)

	rates.SoilMultipliers = map[pricing.SoilType]float64{pricing.SoilMixed: 1}
	require.NoError(t, s.SaveRates(ctx, rates))
	got, err = s.LoadRates(ctx)
	require.NoError(t, err)
	assert.Len(t, got.SoilMultipliers, 1, "save replaces lookup tables")
}

func TestSaveRates_RejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	rates := pricing.DefaultRates()
	rates.LaborMultiplierLow = 0.5
	err := s.SaveRates(context.Background(), rates)
	assert.ErrorIs(t, err, pricing.ErrInvalidRates)
}

func TestPasswordHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.PasswordHash(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = s.db.Exec(`INSERT INTO users (email, password_hash) VALUES (?, ?)`, "owner@example.com", "$2a$hash")
	require.NoError(t, err)
	hash, err := s.PasswordHash(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$hash", hash)
}

func TestCreateDocument_RollsBackOnSequenceError(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO document_sequences`).
		WithArgs("invoice").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	doc := sampleDocument(billing.KindInvoice, "Fay", time.Now().UTC())
	err = New(database).CreateDocument(context.Background(), doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allocate invoice number")
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDocument_RollsBackOnItemError(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO document_sequences`).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(7))
	mock.ExpectExec(`INSERT INTO documents`).
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec(`DELETE FROM line_items`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO line_items`).
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	doc := sampleDocument(billing.KindInvoice, "Gil", time.Now().UTC())
	err = New(database).CreateDocument(context.Background(), doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert line item")
	assert.Equal(t, "INV-0007", doc.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRates_WrapsQueryError(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	mock.ExpectQuery(`SELECT environmental_multiplier`).
		WillReturnError(errors.New("no such table: rate_config"))

	_, err = New(database).LoadRates(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRatesNotSeeded)
	assert.Contains(t, err.Error(), "query rate_config")
	assert.NoError(t, mock.ExpectationsWereMet())
}
