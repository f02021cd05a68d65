package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"school-payments/internal/domain"
	"school-payments/internal/domain/ports/adapter"
	"school-payments/internal/infra/logging"
)

const (
	msgInternal    = "Something went wrong on our side. Please contact support and quote request %s."
	msgUnavailable = "Payments are temporarily unavailable. Please try again later."
	msgGateway     = "The payment provider could not be reached. Please try again in a few minutes."
)

const maxRequestBody = 64 << 10

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: status < http.StatusBadRequest, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	tid := logging.TraceID(r.Context())
	if strings.Contains(message, "%s") {
		message = fmt.Sprintf(message, tid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &apiError{Code: code, Message: message, TraceID: tid}})
}

// errorResponse classifies a use-case error. Provider and storage details never
// reach the client.
func errorResponse(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrPaymentsDisabled):
		return http.StatusServiceUnavailable, "payments_disabled", "Payments are currently disabled."
	case errors.Is(err, domain.ErrPriceUnavailable), errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable, "unavailable", msgUnavailable
	case errors.Is(err, domain.ErrPaymentInitFailed), errors.Is(err, domain.ErrVerificationFailed):
		return http.StatusBadGateway, "gateway_error", msgGateway
	case errors.Is(err, adapter.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature", "Signature verification failed."
	case errors.Is(err, adapter.ErrMalformedPayload):
		return http.StatusBadRequest, "malformed", "The request body could not be parsed."
	case errors.Is(err, domain.ErrInvalidServiceType):
		return http.StatusBadRequest, "invalid_service", "Unknown service type."
	case errors.Is(err, domain.ErrWeakPassword):
		return http.StatusBadRequest, "weak_password", domain.ErrWeakPassword.Error()
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", "Not found."
	case errors.Is(err, domain.ErrTransactionNotOwned):
		return http.StatusForbidden, "forbidden", "This payment belongs to another account."
	case errors.Is(err, domain.ErrAlreadyHasAccess):
		return http.StatusConflict, "already_paid", "You already have access to this service."
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		return http.StatusPaymentRequired, "payment_incomplete", "The payment has not been completed yet."
	case errors.Is(err, domain.ErrNoAccess):
		return http.StatusPaymentRequired, "payment_required", "A payment is required for this service."
	default:
		return http.StatusInternalServerError, "internal", msgInternal
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
	}
	writeError(w, r, status, code, msg)
}

// decode reads a JSON body, or a form when the client posts one.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}, fromForm func(get func(string) string)) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		if fromForm == nil {
			return fmt.Errorf("%w: form bodies are not accepted here", domain.ErrInvalidArgument)
		}
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		fromForm(r.PostForm.Get)
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument)
	}
	return nil
}

func (s *Server) validate(v interface{}) error {
	err := s.validator.Struct(v)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Errorf("%w: %s failed %s", domain.ErrInvalidArgument, f.Field(), f.Tag())
	}
	return err
}
