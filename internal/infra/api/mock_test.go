package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"school-payments/internal/domain/model"
	"school-payments/internal/usecase"
)

// --- Mock Use Cases ---

type mockPayments struct {
	usecase.PaymentUseCase // Embed interface for forward compatibility

	mu          sync.Mutex
	createCalls []model.ServiceRequest
	createUsers []string

	CreateFunc  func(userID string, req model.ServiceRequest) (*usecase.PaymentRequest, error)
	VerifyFunc  func(userID, reference string) (*usecase.VerificationResult, error)
	ConfirmFunc func(reference, providerRef string) (*usecase.VerificationResult, error)
	Prices      map[model.ServiceType]*model.ServicePricing
	History     []*model.PaymentTransaction
	SweepErr    error
}

func (m *mockPayments) CreatePaymentRequest(ctx context.Context, userID string, req model.ServiceRequest) (*usecase.PaymentRequest, error) {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, req)
	m.createUsers = append(m.createUsers, userID)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(userID, req)
	}
	return &usecase.PaymentRequest{
		Reference:   "PAS_1700000000_1234",
		ServiceType: string(req.Type),
		Amount:      500,
		Currency:    "GHS",
		Gateway:     "paystack",
		CheckoutURL: "https://checkout.test/PAS_1700000000_1234",
	}, nil
}

func (m *mockPayments) VerifyPayment(ctx context.Context, userID, reference string) (*usecase.VerificationResult, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(userID, reference)
	}
	return &usecase.VerificationResult{Reference: reference, Status: model.TransactionCompleted}, nil
}

func (m *mockPayments) ConfirmByReference(ctx context.Context, reference, providerRef string) (*usecase.VerificationResult, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(reference, providerRef)
	}
	return &usecase.VerificationResult{Reference: reference, Status: model.TransactionCompleted}, nil
}

func (m *mockPayments) GetServicePrice(ctx context.Context, t model.ServiceType) *model.ServicePricing {
	return m.Prices[t]
}

func (m *mockPayments) ListUserTransactions(ctx context.Context, userID string, limit int) []*model.PaymentTransaction {
	return m.History
}

func (m *mockPayments) Sweep(ctx context.Context) (usecase.SweepResult, error) {
	if m.SweepErr != nil {
		return usecase.SweepResult{}, m.SweepErr
	}
	return usecase.SweepResult{Expired: 2, Stale: 1}, nil
}

type mockWebhooks struct {
	usecase.WebhookUseCase

	ProcessFunc   func(gateway string, payload []byte, signature string) (bool, error)
	lastSignature string
}

func (m *mockWebhooks) Process(ctx context.Context, gateway string, payload []byte, signature string) (bool, error) {
	m.lastSignature = signature
	if m.ProcessFunc != nil {
		return m.ProcessFunc(gateway, payload, signature)
	}
	return true, nil
}

func (m *mockWebhooks) Recent(ctx context.Context, gateway string, limit int) ([]*model.WebhookLog, error) {
	return []*model.WebhookLog{{ID: "01H", Gateway: "paystack", EventType: "charge.success", Processed: true, ReceivedAt: time.Unix(1700000000, 0)}}, nil
}

type mockReset struct {
	usecase.PasswordResetUseCase
	ResetFunc func(userID, reference, password string) (*usecase.ResetResult, error)
}

func (m *mockReset) RequiresPayment(ctx context.Context, userID string) bool { return true }

func (m *mockReset) ProcessReset(ctx context.Context, userID, reference, password string) (*usecase.ResetResult, error) {
	return m.ResetFunc(userID, reference, password)
}

type mockReview struct {
	usecase.ReviewUseCase
	OpenErr error
}

func (m *mockReview) CheckAccess(ctx context.Context, userID, assessmentID string) usecase.ReviewAccess {
	return usecase.ReviewAccess{Status: usecase.ReviewNotPaid}
}

func (m *mockReview) OpenReview(ctx context.Context, userID, assessmentID string) (usecase.ReviewAccess, error) {
	if m.OpenErr != nil {
		return usecase.ReviewAccess{}, m.OpenErr
	}
	return usecase.ReviewAccess{Status: usecase.ReviewActive, HasAccess: true, RemainingSeconds: 3600}, nil
}

type mockRetake struct {
	usecase.RetakeUseCase
	Result            usecase.RetakeResult
	EligibilityResult usecase.RetakeEligibility
}

func (m *mockRetake) GrantRetake(ctx context.Context, userID, assessmentID string) usecase.RetakeResult {
	return m.Result
}

func (m *mockRetake) Eligibility(ctx context.Context, userID, assessmentID string) usecase.RetakeEligibility {
	return m.EligibilityResult
}

type mockPricing struct {
	usecase.PricingUseCase
	lastActive bool
}

func (m *mockPricing) SetPrice(ctx context.Context, adminID string, serviceType, amount, currency, description string, active bool) (*model.ServicePricing, error) {
	m.lastActive = active
	return &model.ServicePricing{ServiceType: model.ServiceType(serviceType), Amount: 250, Currency: "GHS", IsActive: active}, nil
}

type mockConfig struct {
	usecase.ConfigUseCase
	ValidateErr error
	setKey      string
}

func (m *mockConfig) Set(ctx context.Context, adminID, key, value string) error {
	m.setKey = key
	return nil
}

func (m *mockConfig) Validate(ctx context.Context) error { return m.ValidateErr }

type mockLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.keys = append(m.keys, key)
	return m.allowed, m.err
}

var errBoom = errors.New("pq: connection reset by peer")
