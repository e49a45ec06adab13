package main

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Simplici0/levelworks/internal/billing"
	"github.com/Simplici0/levelworks/internal/email"
	"github.com/Simplici0/levelworks/internal/pricing"
	"github.com/Simplici0/levelworks/internal/render"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type documentResponse struct {
	billing.Document
	Totals billing.Totals `json:"totals"`
}

func newDocumentResponse(doc billing.Document) documentResponse {
	return documentResponse{Document: doc, Totals: doc.Totals()}
}

func (s *server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	docs, err := s.billing.List(r.Context(), billing.Filter{
		Kind:   billing.Kind(q.Get("kind")),
		Status: billing.Status(q.Get("status")),
		Query:  q.Get("q"),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, newDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var d billing.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	doc, err := s.billing.Create(r.Context(), d)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/documents/%d", doc.ID))
	writeJSON(w, http.StatusCreated, newDocumentResponse(doc))
}

func (s *server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	s.withDocument(w, r, func(doc billing.Document) {
		writeJSON(w, http.StatusOK, newDocumentResponse(doc))
	})
}

func (s *server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	var d billing.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s.respondDocument(w, r)(s.billing.Update(r.Context(), id, d))
}

func (s *server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := s.billing.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	var in billing.ItemInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s.respondDocument(w, r)(s.billing.AddLineItem(r.Context(), id, in))
}

type pricedItemRequest struct {
	Job   pricing.JobInput `json:"job"`
	Bound string           `json:"bound,omitempty"`
}

func (s *server) handleAddPricedItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	var req pricedItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	bound, err := pricing.ParseBound(req.Bound)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	rates, err := s.rates.LoadRates(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.respondDocument(w, r)(s.billing.AddPricedItem(r.Context(), id, req.Job, bound, rates))
}

func (s *server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	itemID, err := idParam(r, "itemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s.respondDocument(w, r)(s.billing.RemoveLineItem(r.Context(), id, itemID))
}

func (s *server) handleSign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	var in billing.SignatureInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s.respondDocument(w, r)(s.billing.Sign(r.Context(), id, in))
}

type statusRequest struct {
	Status billing.Status `json:"status"`
}

func (s *server) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s.respondDocument(w, r)(s.billing.Transition(r.Context(), id, req.Status))
}

func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	inv, err := s.billing.ConvertToInvoice(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/documents/%d", inv.ID))
	writeJSON(w, http.StatusCreated, newDocumentResponse(inv))
}

func (s *server) handleText(w http.ResponseWriter, r *http.Request) {
	s.withDocument(w, r, func(doc billing.Document) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if r.URL.Query().Get("download") != "" {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", render.Filename(doc, "txt")))
		}
		_, _ = w.Write([]byte(render.Text(doc, s.business)))
	})
}

func (s *server) handleXLSX(w http.ResponseWriter, r *http.Request) {
	s.withDocument(w, r, func(doc billing.Document) {
		data, err := render.XLSX(doc, s.business)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", render.Filename(doc, "xlsx")))
		_, _ = w.Write(data)
	})
}

type emailRequest struct {
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleEmail sends the text rendering to the customer. When sending is not
// possible the response carries a mailto link and the text to copy.
func (s *server) handleEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	s.withDocument(w, r, func(doc billing.Document) {
		msg := email.Message{
			To:      strings.TrimSpace(req.To),
			Subject: strings.TrimSpace(req.Subject),
			Body:    render.Text(doc, s.business),
		}
		if msg.To == "" {
			msg.To = doc.Customer.Email
		}
		if msg.Subject == "" {
			msg.Subject = render.Title(doc)
			if s.business.Name != "" {
				msg.Subject += " from " + s.business.Name
			}
		}
		if m := strings.TrimSpace(req.Message); m != "" {
			msg.Body = m + "\n\n" + msg.Body
		}

		out, err := s.mailer.Deliver(r.Context(), msg)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if !out.Sent {
			s.log.Info("email fallback offered", zap.Int64("id", doc.ID), zap.String("reason", out.Reason))
		}
		writeJSON(w, http.StatusOK, out)
	})
}

func (s *server) withDocument(w http.ResponseWriter, r *http.Request, fn func(billing.Document)) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	doc, err := s.billing.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	fn(doc)
}

// respondDocument writes the result of a mutating service call.
func (s *server) respondDocument(w http.ResponseWriter, r *http.Request) func(billing.Document, error) {
	return func(doc billing.Document, err error) {
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newDocumentResponse(doc))
	}
}
