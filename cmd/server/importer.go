package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/Simplici0/levelworks/internal/billing"
)

// backupSchema describes the export of the browser app: two arrays of saved
// documents with their customer and items.
const backupSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"invoices": {"type": "array", "items": {"$ref": "#/definitions/document"}},
		"estimates": {"type": "array", "items": {"$ref": "#/definitions/document"}}
	},
	"anyOf": [{"required": ["invoices"]}, {"required": ["estimates"]}],
	"definitions": {
		"document": {
			"type": "object",
			"required": ["customer", "items"],
			"properties": {
				"number": {"type": "string"},
				"status": {"type": "string", "enum": ["draft", "sent", "accepted", "declined", "converted", "paid", "void"]},
				"customer": {
					"type": "object",
					"required": ["name"],
					"properties": {
						"name": {"type": "string", "minLength": 1},
						"email": {"type": "string"},
						"phone": {"type": "string"},
						"address": {"type": "string"}
					}
				},
				"items": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["description", "quantity", "unit_price"],
						"properties": {
							"description": {"type": "string"},
							"quantity": {"type": "number", "exclusiveMinimum": 0},
							"unit_price": {"type": "number", "minimum": 0}
						}
					}
				},
				"tax_percent": {"type": "number", "minimum": 0, "maximum": 100},
				"discount": {"type": "number", "minimum": 0},
				"notes": {"type": "string"},
				"issued_at": {"type": "string", "format": "date-time"},
				"due_at": {"type": "string", "format": "date-time"}
			}
		}
	}
}`

var backupSchemaLoader = gojsonschema.NewStringLoader(backupSchema)

type backupDocument struct {
	Number     string              `json:"number"`
	Status     billing.Status      `json:"status"`
	Customer   billing.Customer    `json:"customer"`
	Items      []billing.ItemInput `json:"items"`
	TaxPercent float64             `json:"tax_percent"`
	Discount   float64             `json:"discount"`
	Notes      string              `json:"notes"`
	IssuedAt   *time.Time          `json:"issued_at"`
	DueAt      *time.Time          `json:"due_at"`
}

type backupFile struct {
	Invoices  []backupDocument `json:"invoices"`
	Estimates []backupDocument `json:"estimates"`
}

type importedDocument struct {
	ID             int64  `json:"id"`
	Kind           string `json:"kind"`
	Number         string `json:"number"`
	PreviousNumber string `json:"previous_number,omitempty"`
}

type importResponse struct {
	Imported  int                `json:"imported"`
	Documents []importedDocument `json:"documents"`
}

// handleImport restores a backup in one transaction. Documents get fresh
// numbers; the number from the backup is echoed back as previous_number.
func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body", nil)
		return
	}

	result, err := gojsonschema.Validate(backupSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}
	if !result.Valid() {
		fields := make(map[string]string, len(result.Errors()))
		for _, desc := range result.Errors() {
			fields[desc.Field()] = desc.Description()
		}
		writeError(w, http.StatusUnprocessableEntity, "backup does not match the expected format", fields)
		return
	}

	var backup backupFile
	if err := json.Unmarshal(body, &backup); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}

	var (
		entries  []billing.ImportEntry
		previous []string
	)
	groups := []struct {
		name string
		kind billing.Kind
		docs []backupDocument
	}{
		{"estimates", billing.KindEstimate, backup.Estimates},
		{"invoices", billing.KindInvoice, backup.Invoices},
	}
	for _, g := range groups {
		for i, b := range g.docs {
			entries = append(entries, billing.ImportEntry{
				Label: fmt.Sprintf("%s[%d]", g.name, i),
				Draft: billing.Draft{
					Kind:       g.kind,
					Customer:   b.Customer,
					Items:      b.Items,
					TaxPercent: b.TaxPercent,
					Discount:   b.Discount,
					Notes:      b.Notes,
					IssuedAt:   b.IssuedAt,
					DueAt:      b.DueAt,
				},
				Status: b.Status,
			})
			previous = append(previous, b.Number)
		}
	}

	docs, err := s.billing.Import(r.Context(), entries)
	if err != nil {
		s.log.Warn("backup import rejected", zap.Int("documents", len(entries)), zap.Error(err))
		s.writeServiceError(w, r, err)
		return
	}

	resp := importResponse{Imported: len(docs), Documents: make([]importedDocument, 0, len(docs))}
	for i, doc := range docs {
		resp.Documents = append(resp.Documents, importedDocument{
			ID:             doc.ID,
			Kind:           string(doc.Kind),
			Number:         doc.Number,
			PreviousNumber: previous[i],
		})
	}

	s.log.Info("backup imported", zap.Int("documents", resp.Imported))
	writeJSON(w, http.StatusOK, resp)
}
