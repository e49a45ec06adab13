package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Simplici0/levelworks/internal/billing"
	"github.com/Simplici0/levelworks/internal/email"
	"github.com/Simplici0/levelworks/internal/pricing"
)

const maxBodyBytes = 2 << 20

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeJSON encodes v before writing the status so an encoding failure
// still reaches the client as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	writeJSON(w, status, errorResponse{Error: msg, Fields: fields})
}

// decodeJSON reads a single JSON object and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: unexpected trailing data")
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// writeServiceError maps domain errors onto HTTP statuses and logs the rest.
func (s *server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr  *billing.ValidationError
		ferr  *pricing.FieldError
		field map[string]string
	)
	if errors.As(err, &ferr) {
		field = map[string]string{ferr.Field: ferr.Reason}
	}

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, "validation failed", verr.Fields)
	case errors.Is(err, pricing.ErrInvalidDimensions),
		errors.Is(err, pricing.ErrMissingSelection),
		errors.Is(err, pricing.ErrInvalidPriceBounds),
		errors.Is(err, pricing.ErrInvalidRates):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), field)
	case errors.Is(err, billing.ErrInvalidSignature), errors.Is(err, email.ErrInvalidRecipient):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, billing.ErrNotFound), errors.Is(err, billing.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, billing.ErrNotEditable), errors.Is(err, billing.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
