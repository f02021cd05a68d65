package model

import (
	"fmt"
	"strings"

	"school-payments/internal/domain"
)

// ServiceType identifies a paid, gated capability.
type ServiceType string

const (
	ServicePasswordReset    ServiceType = "password_reset"
	ServiceReviewAssessment ServiceType = "review_assessment"
	ServiceRetakeAssessment ServiceType = "retake_assessment"
)

// AllServiceTypes lists every purchasable service, in display order.
func AllServiceTypes() []ServiceType {
	return []ServiceType{ServicePasswordReset, ServiceReviewAssessment, ServiceRetakeAssessment}
}

func ParseServiceType(s string) (ServiceType, error) {
	switch t := ServiceType(strings.ToLower(strings.TrimSpace(s))); t {
	case ServicePasswordReset, ServiceReviewAssessment, ServiceRetakeAssessment:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidServiceType, s)
	}
}

func (t ServiceType) Valid() bool {
	_, err := ParseServiceType(string(t))
	return err == nil
}

// Prefix is the three-letter tag that opens every reference for this service.
func (t ServiceType) Prefix() string {
	if len(t) < 3 {
		return strings.ToUpper(string(t))
	}
	return strings.ToUpper(string(t[:3]))
}

// MaxUses is how many consumptions a single grant allows.
func (t ServiceType) MaxUses() int {
	if t == ServicePasswordReset {
		return 2
	}
	return 1
}

// MultiUse reports whether a grant stays consumable after its first use.
func (t ServiceType) MultiUse() bool { return t.MaxUses() > 1 }

// Windowed reports whether access is a time window rather than a count of uses.
func (t ServiceType) Windowed() bool { return t == ServiceReviewAssessment }

// AssessmentScoped reports whether the service targets one assessment.
func (t ServiceType) AssessmentScoped() bool {
	return t == ServiceReviewAssessment || t == ServiceRetakeAssessment
}

func (t ServiceType) DisplayName() string {
	switch t {
	case ServicePasswordReset:
		return "Password Reset"
	case ServiceReviewAssessment:
		return "Assessment Review"
	case ServiceRetakeAssessment:
		return "Assessment Retake"
	default:
		return string(t)
	}
}

// ServiceRequest is a service type plus the assessment it targets, if any.
// Password resets carry no assessment; reviews and retakes always do.
type ServiceRequest struct {
	Type         ServiceType
	AssessmentID string
}

func PasswordReset() ServiceRequest {
	return ServiceRequest{Type: ServicePasswordReset}
}

func AssessmentReview(assessmentID string) ServiceRequest {
	return ServiceRequest{Type: ServiceReviewAssessment, AssessmentID: assessmentID}
}

func AssessmentRetake(assessmentID string) ServiceRequest {
	return ServiceRequest{Type: ServiceRetakeAssessment, AssessmentID: assessmentID}
}

// NewServiceRequest builds a validated request from raw inputs.
func NewServiceRequest(serviceType, referenceID string) (ServiceRequest, error) {
	t, err := ParseServiceType(serviceType)
	if err != nil {
		return ServiceRequest{}, err
	}
	r := ServiceRequest{Type: t, AssessmentID: strings.TrimSpace(referenceID)}
	if !t.AssessmentScoped() {
		r.AssessmentID = ""
	}
	if err := r.Validate(); err != nil {
		return ServiceRequest{}, err
	}
	return r, nil
}

func (r ServiceRequest) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidServiceType, r.Type)
	}
	if r.Type.AssessmentScoped() && r.AssessmentID == "" {
		return fmt.Errorf("%w: %s requires an assessment id", domain.ErrInvalidArgument, r.Type)
	}
	if !r.Type.AssessmentScoped() && r.AssessmentID != "" {
		return fmt.Errorf("%w: %s takes no assessment id", domain.ErrInvalidArgument, r.Type)
	}
	return nil
}

// ReferenceID is the nullable column value for the assessment.
func (r ServiceRequest) ReferenceID() *string {
	if r.AssessmentID == "" {
		return nil
	}
	id := r.AssessmentID
	return &id
}

func (r ServiceRequest) String() string {
	if r.AssessmentID == "" {
		return string(r.Type)
	}
	return string(r.Type) + ":" + r.AssessmentID
}
