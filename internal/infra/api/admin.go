package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"school-payments/internal/domain"
	"school-payments/internal/infra/logging"
	"school-payments/internal/infra/metrics"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats.PaymentStats(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Payments.Sweep(r.Context())
	if err != nil {
		metrics.IncAdminAction("sweep", "error")
		s.fail(w, r, err)
		return
	}
	metrics.IncAdminAction("sweep", "ok")
	writeJSON(w, http.StatusOK, res)
}

// handleReconcile re-verifies one transaction with its gateway on demand.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	ctx := logging.WithReference(r.Context(), ref)
	res, err := s.svc.Payments.ConfirmByReference(ctx, ref, "")
	if err != nil {
		metrics.IncAdminAction("reconcile", "error")
		s.fail(w, r.WithContext(ctx), err)
		return
	}
	metrics.IncAdminAction("reconcile", "ok")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePricingList(w http.ResponseWriter, r *http.Request) {
	prices, err := s.svc.Pricing.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]priceView, 0, len(prices))
	for _, p := range prices {
		out = append(out, newPriceView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type pricingRequest struct {
	Amount      string `json:"amount" validate:"required,max=16"`
	Currency    string `json:"currency" validate:"omitempty,len=3,alpha"`
	Description string `json:"description" validate:"max=255"`
	Active      *bool  `json:"active"`
}

func (s *Server) handlePricingSet(w http.ResponseWriter, r *http.Request) {
	var req pricingRequest
	err := decode(w, r, &req, nil)
	if err == nil {
		err = s.validate(req)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	active := req.Active == nil || *req.Active
	p, err := s.svc.Pricing.SetPrice(r.Context(), userID(r), chi.URLParam(r, "serviceType"), req.Amount, req.Currency, req.Description, active)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPriceView(p))
}

// handleConfigKeys lists key names only; values never leave the store.
func (s *Server) handleConfigKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.svc.Config.Keys(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

type configRequest struct {
	Value string `json:"value" validate:"required,max=4096"`
}

func (s *Server) handleConfigSet(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	err := decode(w, r, &req, nil)
	if err == nil {
		err = s.validate(req)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.Config.Set(r.Context(), userID(r), chi.URLParam(r, "key"), req.Value); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validationView struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleConfigValidate(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Config.Validate(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, validationView{Valid: true})
	case errors.Is(err, domain.ErrConfiguration):
		writeJSON(w, http.StatusOK, validationView{Error: err.Error()})
	default:
		s.fail(w, r, err)
	}
}

type webhookLogView struct {
	ID         string `json:"id"`
	Gateway    string `json:"gateway"`
	EventType  string `json:"event_type"`
	Reference  string `json:"reference,omitempty"`
	Processed  bool   `json:"processed"`
	Error      string `json:"error,omitempty"`
	ReceivedAt string `json:"received_at"`
}

func (s *Server) handleWebhookLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	logs, err := s.svc.Webhooks.Recent(r.Context(), q.Get("gateway"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]webhookLogView, 0, len(logs))
	for _, l := range logs {
		out = append(out, webhookLogView{
			ID:         l.ID,
			Gateway:    l.Gateway,
			EventType:  l.EventType,
			Reference:  l.Reference,
			Processed:  l.Processed,
			Error:      l.Error,
			ReceivedAt: l.ReceivedAt.UTC().Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
