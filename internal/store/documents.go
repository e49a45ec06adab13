// Package store persists documents, rate tables and users in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Simplici0/levelworks/internal/billing"
)

const timeLayout = time.RFC3339Nano

// Store implements billing.Repository over a migrated database.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ billing.Repository = (*Store)(nil)

func (s *Store) CreateDocument(ctx context.Context, doc *billing.Document) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertDocument(ctx, tx, doc)
	})
}

func (s *Store) GetDocument(ctx context.Context, id int64) (billing.Document, error) {
	row := s.db.QueryRowContext(ctx, selectDocument+` WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Document{}, billing.ErrNotFound
	}
	if err != nil {
		return billing.Document{}, fmt.Errorf("query document %d: %w", id, err)
	}

	if err := s.loadChildren(ctx, &doc); err != nil {
		return billing.Document{}, err
	}
	return doc, nil
}

// ListDocuments returns matching documents newest first.
func (s *Store) ListDocuments(ctx context.Context, f billing.Filter) ([]billing.Document, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, `(number LIKE ? ESCAPE '\' OR customer_name LIKE ? ESCAPE '\' OR COALESCE(notes, '') LIKE ? ESCAPE '\')`)
		like := "%" + likeEscaper.Replace(q) + "%"
		args = append(args, like, like, like)
	}

	query := selectDocument
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	docs := make([]billing.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	// The pool holds a single connection, so children load after rows close.
	rows.Close()

	for i := range docs {
		if err := s.loadChildren(ctx, &docs[i]); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc *billing.Document) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return updateDocument(ctx, tx, doc)
	})
}

func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	return requireAffected(res)
}

func (s *Store) ConvertEstimate(ctx context.Context, estimate *billing.Document, invoice *billing.Document) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := updateDocument(ctx, tx, estimate); err != nil {
			return err
		}
		return insertDocument(ctx, tx, invoice)
	})
}

// ImportDocuments inserts docs in one transaction; a failure stores none of them.
func (s *Store) ImportDocuments(ctx context.Context, docs []*billing.Document) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, doc := range docs {
			if err := insertDocument(ctx, tx, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// nextNumber bumps the per-kind sequence and returns the new value.
func nextNumber(ctx context.Context, tx *sql.Tx, kind billing.Kind) (int64, error) {
	var n int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO document_sequences (kind, last_value) VALUES (?, 1)
		ON CONFLICT(kind) DO UPDATE SET last_value = last_value + 1
		RETURNING last_value
	`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("allocate %s number: %w", kind, err)
	}
	return n, nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, doc *billing.Document) error {
	n, err := nextNumber(ctx, tx, doc.Kind)
	if err != nil {
		return err
	}
	doc.Number = billing.FormatNumber(doc.Kind, n)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (
			uuid, kind, number, status,
			customer_name, customer_email, customer_phone, customer_address,
			tax_percent, discount, notes, issued_at, due_at, source_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		doc.UUID, string(doc.Kind), doc.Number, string(doc.Status),
		doc.Customer.Name, nullString(doc.Customer.Email), nullString(doc.Customer.Phone), nullString(doc.Customer.Address),
		doc.TaxPercent, doc.Discount, nullString(doc.Notes), formatTime(doc.IssuedAt), nullTime(doc.DueAt), nullInt(doc.SourceID),
		formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read document id: %w", err)
	}
	doc.ID = id

	if err := replaceItems(ctx, tx, doc); err != nil {
		return err
	}
	return replaceSignature(ctx, tx, doc)
}

func updateDocument(ctx context.Context, tx *sql.Tx, doc *billing.Document) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE documents SET
			status = ?,
			customer_name = ?, customer_email = ?, customer_phone = ?, customer_address = ?,
			tax_percent = ?, discount = ?, notes = ?, issued_at = ?, due_at = ?,
			updated_at = ?
		WHERE id = ?
	`,
		string(doc.Status),
		doc.Customer.Name, nullString(doc.Customer.Email), nullString(doc.Customer.Phone), nullString(doc.Customer.Address),
		doc.TaxPercent, doc.Discount, nullString(doc.Notes), formatTime(doc.IssuedAt), nullTime(doc.DueAt),
		formatTime(doc.UpdatedAt),
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("update document %d: %w", doc.ID, err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if err := replaceItems(ctx, tx, doc); err != nil {
		return err
	}
	return replaceSignature(ctx, tx, doc)
}

// replaceItems rewrites the item rows of doc, keeping IDs that are already set.
func replaceItems(ctx context.Context, tx *sql.Tx, doc *billing.Document) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear line items: %w", err)
	}

	for i := range doc.Items {
		item := &doc.Items[i]

		var snapshot sql.NullString
		if item.Pricing != nil {
			raw, err := json.Marshal(item.Pricing)
			if err != nil {
				return fmt.Errorf("encode pricing snapshot: %w", err)
			}
			snapshot = sql.NullString{String: string(raw), Valid: true}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO line_items (id, document_id, position, description, quantity, unit_price, pricing_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sql.NullInt64{Int64: item.ID, Valid: item.ID != 0}, doc.ID, i, item.Description, item.Quantity, item.UnitPrice, snapshot)
		if err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
		if item.ID == 0 {
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("read line item id: %w", err)
			}
			item.ID = id
		}
	}
	return nil
}

func replaceSignature(ctx context.Context, tx *sql.Tx, doc *billing.Document) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM signatures WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear signature: %w", err)
	}
	if doc.Signature == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO signatures (document_id, signer_name, image_png, signed_at)
		VALUES (?, ?, ?, ?)
	`, doc.ID, doc.Signature.SignerName, doc.Signature.ImagePNG, formatTime(doc.Signature.SignedAt))
	if err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

const selectDocument = `
	SELECT id, uuid, kind, number, status,
		customer_name, COALESCE(customer_email, ''), COALESCE(customer_phone, ''), COALESCE(customer_address, ''),
		tax_percent, discount, COALESCE(notes, ''), issued_at, due_at, source_id,
		created_at, updated_at
	FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (billing.Document, error) {
	var (
		doc                           billing.Document
		kind, status                  string
		issuedAt, createdAt, updateAt string
		dueAt                         sql.NullString
		sourceID                      sql.NullInt64
	)
	err := row.Scan(
		&doc.ID, &doc.UUID, &kind, &doc.Number, &status,
		&doc.Customer.Name, &doc.Customer.Email, &doc.Customer.Phone, &doc.Customer.Address,
		&doc.TaxPercent, &doc.Discount, &doc.Notes, &issuedAt, &dueAt, &sourceID,
		&createdAt, &updateAt,
	)
	if err != nil {
		return billing.Document{}, err
	}

	doc.Kind = billing.Kind(kind)
	doc.Status = billing.Status(status)
	if doc.IssuedAt, err = parseTime(issuedAt); err != nil {
		return billing.Document{}, err
	}
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return billing.Document{}, err
	}
	if doc.UpdatedAt, err = parseTime(updateAt); err != nil {
		return billing.Document{}, err
	}
	if dueAt.Valid {
		t, err := parseTime(dueAt.String)
		if err != nil {
			return billing.Document{}, err
		}
		doc.DueAt = &t
	}
	if sourceID.Valid {
		id := sourceID.Int64
		doc.SourceID = &id
	}
	return doc, nil
}

func (s *Store) loadChildren(ctx context.Context, doc *billing.Document) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, quantity, unit_price, pricing_json
		FROM line_items
		WHERE document_id = ?
		ORDER BY position
	`, doc.ID)
	if err != nil {
		return fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	doc.Items = make([]billing.LineItem, 0)
	for rows.Next() {
		var (
			item     billing.LineItem
			snapshot sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Description, &item.Quantity, &item.UnitPrice, &snapshot); err != nil {
			return fmt.Errorf("scan line item: %w", err)
		}
		if snapshot.Valid && snapshot.String != "" {
			var p billing.PricingSnapshot
			if err := json.Unmarshal([]byte(snapshot.String), &p); err != nil {
				return fmt.Errorf("decode pricing snapshot of item %d: %w", item.ID, err)
			}
			item.Pricing = &p
		}
		doc.Items = append(doc.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate line items: %w", err)
	}
	rows.Close()

	var (
		sig      billing.Signature
		signedAt string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT signer_name, image_png, signed_at FROM signatures WHERE document_id = ?
	`, doc.ID).Scan(&sig.SignerName, &sig.ImagePNG, &signedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query signature: %w", err)
	}
	if sig.SignedAt, err = parseTime(signedAt); err != nil {
		return err
	}
	doc.Signature = &sig
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return billing.ErrNotFound
	}
	return nil
}

// likeEscaper makes user text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
