//go:build !integration

package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/adapter"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/usecase"
)

// -----------------------------
// Utilities
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func strPtr(s string) *string { return &s }

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// =============================
// Adapters
// =============================

// ---- MockConfigStore ----

type MockConfigStore struct {
	mu          sync.Mutex
	values      map[string]string
	encrypted   map[string]bool
	ValidateErr error
}

var _ adapter.ConfigStore = (*MockConfigStore)(nil)

func NewMockConfigStore() *MockConfigStore {
	return &MockConfigStore{values: map[string]string{}, encrypted: map[string]bool{}}
}

func (m *MockConfigStore) Get(ctx context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MockConfigStore) Set(ctx context.Context, key, value string, encrypt bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.encrypted[key] = encrypt
	return nil
}

func (m *MockConfigStore) ValidateConfig(ctx context.Context) error { return m.ValidateErr }

// ---- MockGateway ----

type MockGateway struct {
	mu          sync.Mutex
	name        string
	InitCalls   int
	VerifyCalls int

	InitFunc   func(ctx context.Context, req adapter.InitRequest) (adapter.InitResult, error)
	VerifyFunc func(ctx context.Context, reference, providerReference string) (adapter.VerifyResult, error)
	ParseFunc  func(ctx context.Context, payload []byte, signature string) (adapter.WebhookEvent, error)
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func NewMockGateway(name string) *MockGateway { return &MockGateway{name: name} }

func (g *MockGateway) Name() string                 { return g.name }
func (g *MockGateway) RequiredConfigKeys() []string { return nil }

func (g *MockGateway) InitializePayment(ctx context.Context, req adapter.InitRequest) (adapter.InitResult, error) {
	g.mu.Lock()
	g.InitCalls++
	g.mu.Unlock()
	if g.InitFunc != nil {
		return g.InitFunc(ctx, req)
	}
	return adapter.InitResult{
		Success:           true,
		CheckoutURL:       "https://checkout.test/" + req.Reference,
		ProviderReference: "tok-" + req.Reference,
		AccessCode:        "tok-" + req.Reference,
	}, nil
}

func (g *MockGateway) VerifyPayment(ctx context.Context, reference, providerReference string) (adapter.VerifyResult, error) {
	g.mu.Lock()
	g.VerifyCalls++
	g.mu.Unlock()
	if g.VerifyFunc != nil {
		return g.VerifyFunc(ctx, reference, providerReference)
	}
	return adapter.VerifyResult{Status: adapter.VerifySuccess, Message: "approved", Channel: "card", ProviderReference: providerReference}, nil
}

// ParseWebhook defaults to "signature must equal ok", body = reference of a successful charge.
func (g *MockGateway) ParseWebhook(ctx context.Context, payload []byte, signature string) (adapter.WebhookEvent, error) {
	if g.ParseFunc != nil {
		return g.ParseFunc(ctx, payload, signature)
	}
	if signature != "ok" {
		return adapter.WebhookEvent{}, adapter.ErrInvalidSignature
	}
	return adapter.WebhookEvent{Type: adapter.EventChargeSucceeded, RawType: "charge.success", Reference: string(payload)}, nil
}

// ---- MockAlerts ----

type MockAlerts struct {
	mu       sync.Mutex
	Subjects []string
}

func (m *MockAlerts) Alert(ctx context.Context, subject, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subjects = append(m.Subjects, subject)
	return nil
}

// =============================
// Repositories
// =============================

// ---- MockTxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

// WithTx runs fn directly with a nil handle unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// ---- MockTransactionRepo ----

type MockTransactionRepo struct {
	mu    sync.Mutex
	byRef map[string]*model.PaymentTransaction

	// CreateErrs are returned by successive Create calls before the real insert.
	CreateErrs []error
	Writes     int
}

var _ repository.PaymentTransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{byRef: map[string]*model.PaymentTransaction{}}
}

func (r *MockTransactionRepo) Create(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.CreateErrs) > 0 {
		err := r.CreateErrs[0]
		r.CreateErrs = r.CreateErrs[1:]
		return err
	}
	if _, ok := r.byRef[t.Reference]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *t
	r.byRef[t.Reference] = &cp
	return nil
}

func (r *MockTransactionRepo) Put(t *model.PaymentTransaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.byRef[t.Reference] = &cp
}

func (r *MockTransactionRepo) Get(reference string) *model.PaymentTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byRef[reference]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

func (r *MockTransactionRepo) All() []*model.PaymentTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.PaymentTransaction, 0, len(r.byRef))
	for _, t := range r.byRef {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

func (r *MockTransactionRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.PaymentTransaction, error) {
	if t := r.Get(reference); t != nil {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockTransactionRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, data model.GatewayData, completedAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byRef {
		if t.ID != id {
			continue
		}
		if t.Status != model.TransactionPending {
			return false, nil
		}
		t.Status = status
		t.Apply(data)
		t.CompletedAt = completedAt
		r.Writes++
		return true, nil
	}
	return false, nil
}

func (r *MockTransactionRepo) SetCheckout(ctx context.Context, tx repository.Tx, id, gatewayReference, checkoutURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byRef {
		if t.ID == id {
			t.GatewayReference, t.CheckoutURL = gatewayReference, checkoutURL
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *MockTransactionRepo) cancelWhere(match func(t *model.PaymentTransaction) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.byRef {
		if t.Status == model.TransactionPending && match(t) {
			t.Status = model.TransactionCancelled
			n++
		}
	}
	return n
}

func (r *MockTransactionRepo) CancelExpiredPending(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	return r.cancelWhere(func(t *model.PaymentTransaction) bool { return t.ExpiresAt.Before(cutoff) }), nil
}

func (r *MockTransactionRepo) CancelPendingCreatedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	return r.cancelWhere(func(t *model.PaymentTransaction) bool { return t.CreatedAt.Before(cutoff) }), nil
}

func (r *MockTransactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	var out []*model.PaymentTransaction
	for _, t := range r.All() {
		if t.Status == model.TransactionPending && t.CreatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockTransactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.PaymentTransaction, error) {
	var out []*model.PaymentTransaction
	for _, t := range r.All() {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockTransactionRepo) AggregateSince(ctx context.Context, tx repository.Tx, since time.Time) ([]model.StatsRow, error) {
	type key struct {
		s model.ServiceType
		st model.TransactionStatus
		c  string
	}
	agg := map[key]*model.StatsRow{}
	for _, t := range r.All() {
		if t.CreatedAt.Before(since) {
			continue
		}
		k := key{t.ServiceType, t.Status, t.Currency}
		row, ok := agg[k]
		if !ok {
			row = &model.StatsRow{ServiceType: t.ServiceType, Status: t.Status, Currency: t.Currency}
			agg[k] = row
		}
		row.Count++
		row.Amount += t.Amount
	}
	out := make([]model.StatsRow, 0, len(agg))
	for _, row := range agg {
		out = append(out, *row)
	}
	return out, nil
}

// ---- MockGrantRepo ----

type MockGrantRepo struct {
	mu     sync.Mutex
	grants []*model.PaidService
}

var _ repository.PaidServiceRepository = (*MockGrantRepo)(nil)

func NewMockGrantRepo() *MockGrantRepo { return &MockGrantRepo{} }

func (r *MockGrantRepo) All() []model.PaidService {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.PaidService, len(r.grants))
	for i, g := range r.grants {
		out[i] = *g
	}
	return out
}

func (r *MockGrantRepo) Create(ctx context.Context, tx repository.Tx, g *model.PaidService) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.grants {
		if existing.TransactionID == g.TransactionID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *g
	r.grants = append(r.grants, &cp)
	return nil
}

func (r *MockGrantRepo) match(g *model.PaidService, userID string, t model.ServiceType, ref *string) bool {
	return g.UserID == userID && g.ServiceType == t && sameRef(g.ReferenceID, ref)
}

func (r *MockGrantRepo) FindUsable(ctx context.Context, tx repository.Tx, userID string, t model.ServiceType, ref *string, now time.Time) (*model.PaidService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if r.match(g, userID, t, ref) && g.HasAccess(now) {
			cp := *g
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockGrantRepo) FindLatest(ctx context.Context, tx repository.Tx, userID string, t model.ServiceType, ref *string) (*model.PaidService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.grants) - 1; i >= 0; i-- {
		if g := r.grants[i]; r.match(g, userID, t, ref) && g.IsActive {
			cp := *g
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockGrantRepo) FindByTransaction(ctx context.Context, tx repository.Tx, transactionID string) (*model.PaidService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.TransactionID == transactionID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockGrantRepo) ConsumeUse(ctx context.Context, tx repository.Tx, userID string, t model.ServiceType, ref *string, now time.Time) (*model.PaidService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if r.match(g, userID, t, ref) && g.HasAccess(now) {
			g.UsageCount++
			if g.UsedAt == nil {
				at := now
				g.UsedAt = &at
			}
			cp := *g
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockGrantRepo) ConsumeGrant(ctx context.Context, tx repository.Tx, id string, now time.Time) (*model.PaidService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.ID != id {
			continue
		}
		if !g.IsActive || g.UsageCount >= g.MaxUses || (g.ExpiresAt != nil && !g.ExpiresAt.After(now)) {
			return nil, domain.ErrNotFound
		}
		g.UsageCount++
		if g.UsedAt == nil {
			at := now
			g.UsedAt = &at
		}
		cp := *g
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

// ---- MockPricingRepo ----

type MockPricingRepo struct {
	mu      sync.Mutex
	prices  map[model.ServiceType]*model.ServicePricing
	FindErr error
}

var _ repository.ServicePricingRepository = (*MockPricingRepo)(nil)

func NewMockPricingRepo() *MockPricingRepo {
	return &MockPricingRepo{prices: map[model.ServiceType]*model.ServicePricing{}}
}

func (r *MockPricingRepo) Seed(t model.ServiceType, amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[t] = &model.ServicePricing{ServiceType: t, Amount: amount, Currency: "GHS", IsActive: true}
}

func (r *MockPricingRepo) FindByServiceType(ctx context.Context, tx repository.Tx, t model.ServiceType) (*model.ServicePricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	p, ok := r.prices[t]
	if !ok || !p.IsActive {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPricingRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.ServicePricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ServicePricing
	for _, p := range r.prices {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceType < out[j].ServiceType })
	return out, nil
}

func (r *MockPricingRepo) Save(ctx context.Context, tx repository.Tx, p *model.ServicePricing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.prices[p.ServiceType] = &cp
	return nil
}

// ---- MockAccountRepo ----

type MockAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
}

var _ repository.AccountRepository = (*MockAccountRepo)(nil)

func NewMockAccountRepo() *MockAccountRepo {
	return &MockAccountRepo{accounts: map[string]*model.Account{}}
}

func (r *MockAccountRepo) Seed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[id] = &model.Account{ID: id, Email: id + "@school.test", FirstName: "Ama", LastName: "Mensah", Role: model.RoleStudent}
}

func (r *MockAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MockAccountRepo) UpdatePassword(ctx context.Context, tx repository.Tx, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

// ---- MockEnrollmentRepo ----

type MockEnrollmentRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Enrollment
}

var _ repository.EnrollmentRepository = (*MockEnrollmentRepo)(nil)

func NewMockEnrollmentRepo() *MockEnrollmentRepo {
	return &MockEnrollmentRepo{rows: map[string]*model.Enrollment{}}
}

func enrollmentKey(userID, assessmentID string) string { return userID + "/" + assessmentID }

func (r *MockEnrollmentRepo) Put(e *model.Enrollment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.rows[enrollmentKey(e.UserID, e.AssessmentID)] = &cp
}

func (r *MockEnrollmentRepo) Get(userID, assessmentID string) *model.Enrollment {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[enrollmentKey(userID, assessmentID)]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (r *MockEnrollmentRepo) Find(ctx context.Context, tx repository.Tx, userID, assessmentID string) (*model.Enrollment, error) {
	if e := r.Get(userID, assessmentID); e != nil {
		return e, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockEnrollmentRepo) MarkReviewPaid(ctx context.Context, tx repository.Tx, userID, assessmentID string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[enrollmentKey(userID, assessmentID)]
	if !ok {
		return domain.ErrNotFound
	}
	e.ReviewPaid, e.ReviewExpiresAt = true, expiresAt
	return nil
}

func (r *MockEnrollmentRepo) MarkRetakePaid(ctx context.Context, tx repository.Tx, userID, assessmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[enrollmentKey(userID, assessmentID)]
	if !ok {
		return domain.ErrNotFound
	}
	e.RetakePaid = true
	return nil
}

func (r *MockEnrollmentRepo) RecordRetake(ctx context.Context, tx repository.Tx, userID, assessmentID string, at, notAfter time.Time, paid bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[enrollmentKey(userID, assessmentID)]
	if !ok {
		return false, nil
	}
	if (e.LastCompletedAt != nil && e.LastCompletedAt.After(notAfter)) || (e.LastRetakeAt != nil && e.LastRetakeAt.After(notAfter)) {
		return false, nil
	}
	e.RetakeCount++
	e.LastRetakeAt = &at
	if paid {
		e.RetakePaid = false
	}
	return true, nil
}

// ---- MockActivityRepo ----

type MockActivityRepo struct {
	mu      sync.Mutex
	Entries []*model.Activity
}

func (r *MockActivityRepo) Save(ctx context.Context, tx repository.Tx, a *model.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, a)
	return nil
}

func (r *MockActivityRepo) Count(sev model.Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.Entries {
		if a.Severity == sev {
			n++
		}
	}
	return n
}

// ---- MockWebhookLogRepo ----

type MockWebhookLogRepo struct {
	mu   sync.Mutex
	Logs []*model.WebhookLog
}

func (r *MockWebhookLogRepo) Save(ctx context.Context, tx repository.Tx, l *model.WebhookLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.Logs = append(r.Logs, &cp)
	return nil
}

func (r *MockWebhookLogRepo) ListRecent(ctx context.Context, tx repository.Tx, gateway string, limit int) ([]*model.WebhookLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WebhookLog
	for i := len(r.Logs) - 1; i >= 0 && len(out) < limit; i-- {
		if gateway == "" || r.Logs[i].Gateway == gateway {
			out = append(out, r.Logs[i])
		}
	}
	return out, nil
}

// =============================
// Wiring
// =============================

type paymentDeps struct {
	txns        *MockTransactionRepo
	grants      *MockGrantRepo
	pricing     *MockPricingRepo
	accounts    *MockAccountRepo
	enrollments *MockEnrollmentRepo
	activity    *MockActivityRepo
	webhooks    *MockWebhookLogRepo
	config      *MockConfigStore
	gateway     *MockGateway
	alerts      *MockAlerts
	tm          *MockTxManager
	settings    *usecase.Settings
	audit       *usecase.Auditor
}

// newPaymentDeps seeds the three standard prices and a student "user-1".
func newPaymentDeps() *paymentDeps {
	d := &paymentDeps{
		txns:        NewMockTransactionRepo(),
		grants:      NewMockGrantRepo(),
		pricing:     NewMockPricingRepo(),
		accounts:    NewMockAccountRepo(),
		enrollments: NewMockEnrollmentRepo(),
		activity:    &MockActivityRepo{},
		webhooks:    &MockWebhookLogRepo{},
		config:      NewMockConfigStore(),
		gateway:     NewMockGateway("paystack"),
		alerts:      &MockAlerts{},
		tm:          NewMockTxManager(),
	}
	d.pricing.Seed(model.ServicePasswordReset, 500)
	d.pricing.Seed(model.ServiceReviewAssessment, 200)
	d.pricing.Seed(model.ServiceRetakeAssessment, 300)
	d.accounts.Seed("user-1")
	d.settings = usecase.NewSettings(d.config)
	d.audit = usecase.NewAuditor(d.activity, newTestLogger())
	return d
}

func (d *paymentDeps) paymentUC() usecase.PaymentUseCase {
	return d.paymentUCAt(time.Now)
}

func (d *paymentDeps) paymentUCAt(now func() time.Time) usecase.PaymentUseCase {
	return usecase.NewPaymentUseCase(
		d.txns, d.grants, d.pricing, d.accounts, d.enrollments,
		adapter.NewGatewaySet(d.gateway), d.settings, d.tm, d.audit, d.alerts, newTestLogger(),
	).WithClock(now)
}

// completedPayment runs a request through creation and a successful callback.
func (d *paymentDeps) completedPayment(uc usecase.PaymentUseCase, userID string, req model.ServiceRequest) string {
	pr, err := uc.CreatePaymentRequest(context.Background(), userID, req)
	if err != nil {
		panic(err)
	}
	if _, err := uc.ProcessPaymentCallback(context.Background(), pr.Reference, model.TransactionCompleted, model.GatewayData{PaymentMethod: "card"}); err != nil {
		panic(err)
	}
	return pr.Reference
}
