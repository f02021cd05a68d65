package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/infra/adapters/payment"
	"school-payments/internal/infra/logging"
	"school-payments/internal/infra/metrics"
	"school-payments/internal/infra/redis"
)

const (
	maxWebhookBody = 1 << 20
	timeLayout     = time.RFC3339
)

const (
	actionCreatePayment = "create_payment"
	actionVerifyPayment = "verify_payment"
)

type paymentActionRequest struct {
	Action      string `json:"action" validate:"required,oneof=create_payment verify_payment"`
	ServiceType string `json:"service_type" validate:"required_if=Action create_payment"`
	ReferenceID string `json:"reference_id" validate:"max=64"`
	Reference   string `json:"reference" validate:"required_if=Action verify_payment,max=64"`
}

func (s *Server) handlePaymentAction(w http.ResponseWriter, r *http.Request) {
	var req paymentActionRequest
	err := decode(w, r, &req, func(get func(string) string) {
		req = paymentActionRequest{
			Action:      get("action"),
			ServiceType: get("service_type"),
			ReferenceID: get("reference_id"),
			Reference:   get("reference"),
		}
	})
	if err == nil {
		err = s.validate(req)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch req.Action {
	case actionCreatePayment:
		s.createPayment(w, r, req)
	case actionVerifyPayment:
		s.verifyPayment(w, r, req.Reference)
	}
}

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request, req paymentActionRequest) {
	ctx := r.Context()
	uid := userID(r)
	if !s.allow(r, uid, actionCreatePayment) {
		writeError(w, r, http.StatusTooManyRequests, "rate_limited", "Too many payment attempts. Please wait a minute and try again.")
		return
	}
	sr, err := model.NewServiceRequest(req.ServiceType, req.ReferenceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pr, err := s.svc.Payments.CreatePaymentRequest(ctx, uid, sr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

// allow fails open: a redis outage must not block payments.
func (s *Server) allow(r *http.Request, uid, action string) bool {
	if s.limiter == nil || s.limit.Requests <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), redis.UserActionKey(uid, action), s.limit.Requests, s.limit.Window)
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	return ok
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request, reference string) {
	var err error
	ctx := logging.WithReference(r.Context(), reference)
	defer observeVerify(time.Now(), &err)
	res, err := s.svc.Payments.VerifyPayment(ctx, userID(r), reference)
	if err != nil {
		s.fail(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCallback is where the gateway sends the payer back. Paystack appends
// ?reference=, ExpressPay appends ?order-id=&token=.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := q.Get("reference")
	if ref == "" {
		ref = q.Get("order-id")
	}
	if ref == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_argument", "Missing payment reference.")
		return
	}
	ctx := logging.WithReference(r.Context(), ref)
	var err error
	defer observeVerify(time.Now(), &err)
	res, err := s.svc.Payments.ConfirmByReference(ctx, ref, q.Get("token"))
	if err != nil {
		s.fail(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txns := s.svc.Payments.ListUserTransactions(r.Context(), userID(r), limit)
	out := make([]transactionView, 0, len(txns))
	for _, t := range txns {
		out = append(out, newTransactionView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func observeVerify(start time.Time, errp *error) {
	result, reason := "ok", ""
	if err := *errp; err != nil {
		result = "fail"
		switch {
		case errors.Is(err, domain.ErrNotFound):
			reason = "not_found"
		case errors.Is(err, domain.ErrTransactionNotOwned):
			reason = "not_owned"
		case errors.Is(err, domain.ErrVerificationFailed):
			reason = "gateway"
		case errors.Is(err, domain.ErrInvalidArgument):
			reason = "bad_request"
		default:
			reason = "unknown"
		}
	}
	metrics.PaymentVerifyRequests.WithLabelValues(result, reason).Inc()
	metrics.PaymentVerifyDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// handleWebhook answers 2xx for anything applied or deliberately ignored, 400
// for integrity failures, and 5xx to ask the gateway to redeliver.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", "Payload too large.")
		return
	}
	ack, err := s.svc.Webhooks.Process(r.Context(), gateway, body, r.Header.Get(payment.SignatureHeader(gateway)))
	switch {
	case ack:
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, r, http.StatusNotFound, "unknown_gateway", "Unknown gateway.")
	default:
		s.fail(w, r, err)
	}
}

type transactionView struct {
	Reference     string  `json:"reference"`
	ServiceType   string  `json:"service_type"`
	AssessmentID  *string `json:"assessment_id,omitempty"`
	Amount        int64   `json:"amount"`
	DisplayAmount string  `json:"display_amount"`
	Currency      string  `json:"currency"`
	Gateway       string  `json:"gateway"`
	Status        string  `json:"status"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	CreatedAt     string  `json:"created_at"`
	CompletedAt   string  `json:"completed_at,omitempty"`
}

// newTransactionView leaves out gateway responses and checkout tokens.
func newTransactionView(t *model.PaymentTransaction) transactionView {
	v := transactionView{
		Reference:     t.Reference,
		ServiceType:   string(t.ServiceType),
		AssessmentID:  t.AssessmentID,
		Amount:        t.Amount,
		DisplayAmount: model.FormatMinor(t.Amount),
		Currency:      t.Currency,
		Gateway:       t.Gateway,
		Status:        string(t.Status),
		PaymentMethod: t.PaymentMethod,
		CreatedAt:     t.CreatedAt.UTC().Format(timeLayout),
	}
	if t.CompletedAt != nil {
		v.CompletedAt = t.CompletedAt.UTC().Format(timeLayout)
	}
	return v
}

type priceView struct {
	ServiceType   string `json:"service_type"`
	Name          string `json:"name"`
	Amount        int64  `json:"amount"`
	DisplayAmount string `json:"display_amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description,omitempty"`
	Active        bool   `json:"active"`
}

func newPriceView(p *model.ServicePricing) priceView {
	return priceView{
		ServiceType:   string(p.ServiceType),
		Name:          p.ServiceType.DisplayName(),
		Amount:        p.Amount,
		DisplayAmount: p.DisplayAmount(),
		Currency:      p.Currency,
		Description:   p.Description,
		Active:        p.IsActive,
	}
}

// handlePrices lists the services a student can buy right now. Services with
// no active price are left out.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	out := make([]priceView, 0, len(model.AllServiceTypes()))
	for _, t := range model.AllServiceTypes() {
		if p := s.svc.Payments.GetServicePrice(r.Context(), t); p != nil {
			out = append(out, newPriceView(p))
		}
	}
	writeJSON(w, http.StatusOK, out)
}
