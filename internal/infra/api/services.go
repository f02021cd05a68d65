package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"school-payments/internal/usecase"
)

type passwordResetRequest struct {
	Reference   string `json:"reference" validate:"max=64"`
	NewPassword string `json:"new_password" validate:"required"`
}

func (s *Server) handlePasswordResetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"requires_payment": s.svc.PasswordReset.RequiresPayment(r.Context(), userID(r)),
	})
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	err := decode(w, r, &req, func(get func(string) string) {
		req = passwordResetRequest{Reference: get("reference"), NewPassword: get("new_password")}
	})
	if err == nil {
		err = s.validate(req)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.PasswordReset.ProcessReset(r.Context(), userID(r), req.Reference, req.NewPassword)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type reviewGrantRequest struct {
	Reference string `json:"reference" validate:"required,max=64"`
}

func (s *Server) handleReviewStatus(w http.ResponseWriter, r *http.Request) {
	access := s.svc.Review.CheckAccess(r.Context(), userID(r), chi.URLParam(r, "assessmentID"))
	writeJSON(w, http.StatusOK, access)
}

// handleReviewGrant is called after the payer returns from checkout.
func (s *Server) handleReviewGrant(w http.ResponseWriter, r *http.Request) {
	var req reviewGrantRequest
	err := decode(w, r, &req, func(get func(string) string) {
		req.Reference = get("reference")
	})
	if err == nil {
		err = s.validate(req)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	access, err := s.svc.Review.GrantAccess(r.Context(), userID(r), chi.URLParam(r, "assessmentID"), req.Reference)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

func (s *Server) handleReviewOpen(w http.ResponseWriter, r *http.Request) {
	access, err := s.svc.Review.OpenReview(r.Context(), userID(r), chi.URLParam(r, "assessmentID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

func (s *Server) handleRetakeStatus(w http.ResponseWriter, r *http.Request) {
	el := s.svc.Retake.Eligibility(r.Context(), userID(r), chi.URLParam(r, "assessmentID"))
	if !el.Enrolled {
		writeError(w, r, http.StatusNotFound, "not_enrolled", "You are not enrolled in this assessment.")
		return
	}
	writeJSON(w, http.StatusOK, el)
}

// handleRetake always returns the RetakeResult so clients can show the wait
// time or the payment prompt.
func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	res := s.svc.Retake.GrantRetake(r.Context(), userID(r), chi.URLParam(r, "assessmentID"))
	writeJSON(w, retakeStatus(res.Reason), res)
}

func retakeStatus(reason usecase.RetakeReason) int {
	switch reason {
	case usecase.RetakeGrantedFree, usecase.RetakeGrantedPaid:
		return http.StatusOK
	case usecase.RetakePaymentRequired:
		return http.StatusPaymentRequired
	case usecase.RetakeCooldown:
		return http.StatusConflict
	case usecase.RetakeNotEnrolled:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
