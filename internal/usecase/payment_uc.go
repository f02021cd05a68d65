// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/adapter"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/infra/logging"
	"school-payments/internal/infra/metrics"
)

const maxReferenceAttempts = 3

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	GetServicePrice(ctx context.Context, t model.ServiceType) *model.ServicePricing
	CanUserAccessService(ctx context.Context, userID string, req model.ServiceRequest) bool
	CreatePaymentRequest(ctx context.Context, userID string, req model.ServiceRequest) (*PaymentRequest, error)
	// VerifyPayment re-queries the gateway for one of the user's own transactions.
	VerifyPayment(ctx context.Context, userID, reference string) (*VerificationResult, error)
	// ConfirmByReference is VerifyPayment without the ownership check, for the
	// gateway redirect, webhooks and the reconciler. providerReference fills in
	// a checkout token the row is missing.
	ConfirmByReference(ctx context.Context, reference, providerReference string) (*VerificationResult, error)
	ProcessPaymentCallback(ctx context.Context, reference string, status model.TransactionStatus, data model.GatewayData) (*CallbackResult, error)
	GrantServiceAccess(ctx context.Context, tx repository.Tx, userID string, req model.ServiceRequest, transactionID string) (*model.PaidService, error)
	// EnsureGrant returns the grant of a completed transaction, creating it if the callback never did.
	EnsureGrant(ctx context.Context, reference string) (*model.PaidService, error)
	MarkServiceAsUsed(ctx context.Context, userID string, req model.ServiceRequest) (bool, error)
	// ConsumeService is MarkServiceAsUsed returning the grant after the use; nil when none was usable.
	ConsumeService(ctx context.Context, userID string, req model.ServiceRequest) (*model.PaidService, error)
	// ConsumeGrant takes one use of g inside tx; domain.ErrNoAccess when it has none left.
	ConsumeGrant(ctx context.Context, tx repository.Tx, g *model.PaidService) (*model.PaidService, error)
	LatestGrant(ctx context.Context, userID string, req model.ServiceRequest) (*model.PaidService, error)
	GrantForTransaction(ctx context.Context, transactionID string) (*model.PaidService, error)
	FindTransaction(ctx context.Context, reference string) (*model.PaymentTransaction, error)
	ListUserTransactions(ctx context.Context, userID string, limit int) []*model.PaymentTransaction
	ListPendingForReconcile(ctx context.Context, olderThan time.Duration, limit int) ([]*model.PaymentTransaction, error)
	CleanupExpiredRequests(ctx context.Context) (int, error)
	CleanupOldPendingTransactions(ctx context.Context) (int, error)
	Sweep(ctx context.Context) (SweepResult, error)
}

// PaymentRequest is what a client needs to open the gateway checkout.
type PaymentRequest struct {
	Reference     string    `json:"reference"`
	ServiceType   string    `json:"service_type"`
	Amount        int64     `json:"amount"`
	DisplayAmount string    `json:"display_amount"`
	Currency      string    `json:"currency"`
	Gateway       string    `json:"gateway"`
	PublicKey     string    `json:"public_key,omitempty"`
	AccessCode    string    `json:"access_code,omitempty"`
	CheckoutURL   string    `json:"checkout_url"`
	Email         string    `json:"email"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// CallbackResult: AlreadyProcessed means the transaction was terminal before
// this call and nothing was written.
type CallbackResult struct {
	Reference        string
	Status           model.TransactionStatus
	AlreadyProcessed bool
	Transaction      *model.PaymentTransaction
	Grant            *model.PaidService
}

type VerificationResult struct {
	Reference        string                  `json:"reference"`
	Status           model.TransactionStatus `json:"status"`
	Message          string                  `json:"message,omitempty"`
	AlreadyProcessed bool                    `json:"already_processed"`
	Grant            *model.PaidService      `json:"-"`
}

type SweepResult struct {
	Expired int `json:"expired"`
	Stale   int `json:"stale"`
}

type paymentUC struct {
	txns        repository.PaymentTransactionRepository
	grants      repository.PaidServiceRepository
	pricing     repository.ServicePricingRepository
	accounts    repository.AccountRepository
	enrollments repository.EnrollmentRepository
	gateways    *adapter.GatewaySet
	settings    *Settings
	tm          repository.TransactionManager
	audit       *Auditor
	alerts      adapter.AlertNotifier
	log         *zerolog.Logger

	now   func() time.Time
	randN func(int) int
}

func NewPaymentUseCase(
	txns repository.PaymentTransactionRepository,
	grants repository.PaidServiceRepository,
	pricing repository.ServicePricingRepository,
	accounts repository.AccountRepository,
	enrollments repository.EnrollmentRepository,
	gateways *adapter.GatewaySet,
	settings *Settings,
	tm repository.TransactionManager,
	audit *Auditor,
	alerts adapter.AlertNotifier,
	logger *zerolog.Logger,
) *paymentUC {
	l := logger.With().Str("component", "payment_uc").Logger()
	return &paymentUC{
		txns:        txns,
		grants:      grants,
		pricing:     pricing,
		accounts:    accounts,
		enrollments: enrollments,
		gateways:    gateways,
		settings:    settings,
		tm:          tm,
		audit:       audit,
		alerts:      alerts,
		log:         &l,
		now:         time.Now,
		randN:       rand.Intn,
	}
}

// WithClock swaps the time source. Tests only.
func (u *paymentUC) WithClock(now func() time.Time) *paymentUC {
	u.now = now
	return u
}

func (u *paymentUC) GetServicePrice(ctx context.Context, t model.ServiceType) *model.ServicePricing {
	p, err := u.pricing.FindByServiceType(ctx, repository.NoTX, t)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.log.Error().Err(err).Str("service_type", string(t)).Msg("price lookup failed")
		}
		return nil
	}
	if !p.IsActive {
		return nil
	}
	return p
}

func (u *paymentUC) CanUserAccessService(ctx context.Context, userID string, req model.ServiceRequest) bool {
	if userID == "" || req.Validate() != nil {
		return false
	}
	now := u.now()
	if req.Type.Windowed() {
		// Opening a review spends its use but access lasts until the window closes.
		g, err := u.grants.FindLatest(ctx, repository.NoTX, userID, req.Type, req.ReferenceID())
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				u.log.Error().Err(err).Str("user_id", userID).Str("service", req.String()).Msg("grant lookup failed")
			}
			return false
		}
		return g.InWindow(now)
	}
	g, err := u.grants.FindUsable(ctx, repository.NoTX, userID, req.Type, req.ReferenceID(), now)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.log.Error().Err(err).Str("user_id", userID).Str("service", req.String()).Msg("grant lookup failed")
		}
		return false
	}
	return g.HasAccess(now)
}

func (u *paymentUC) CreatePaymentRequest(ctx context.Context, userID string, req model.ServiceRequest) (*PaymentRequest, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.CreatePaymentRequest")()
	service := string(req.Type)

	if err := req.Validate(); err != nil {
		metrics.IncPaymentRequest(service, "invalid")
		return nil, err
	}
	if !u.settings.PaymentsEnabled(ctx) {
		metrics.IncPaymentRequest(service, "disabled")
		return nil, domain.ErrPaymentsDisabled
	}
	price := u.GetServicePrice(ctx, req.Type)
	if price == nil {
		metrics.IncPaymentRequest(service, "no_price")
		return nil, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, req.Type)
	}
	if u.CanUserAccessService(ctx, userID, req) {
		metrics.IncPaymentRequest(service, "has_access")
		return nil, domain.ErrAlreadyHasAccess
	}
	gw, err := u.activeGateway(ctx)
	if err != nil {
		metrics.IncPaymentRequest(service, "config")
		u.audit.Record(ctx, "payments", model.SeverityError, userID, "payment refused for %s: %v", req, err)
		return nil, err
	}
	acct, err := u.accounts.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		metrics.IncPaymentRequest(service, "error")
		return nil, fmt.Errorf("load account: %w", err)
	}

	now := u.now()
	currency := price.Currency
	if currency == "" {
		currency = u.settings.Currency(ctx)
	}
	txn := &model.PaymentTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		ServiceType:  req.Type,
		AssessmentID: req.ReferenceID(),
		Amount:       price.Amount,
		Currency:     currency,
		Gateway:      gw.Name(),
		Status:       model.TransactionPending,
		ExpiresAt:    now.Add(u.settings.PaymentTimeout(ctx)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.insertWithFreshReference(ctx, txn, now); err != nil {
		metrics.IncPaymentRequest(service, "error")
		return nil, err
	}

	log := u.log.With().Str("reference", txn.Reference).Str("user_id", userID).Str("gateway", gw.Name()).Logger()
	res, err := gw.InitializePayment(ctx, adapter.InitRequest{
		Reference:   txn.Reference,
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		Email:       acct.Email,
		FirstName:   acct.FirstName,
		LastName:    acct.LastName,
		Phone:       acct.Phone,
		Description: req.Type.DisplayName(),
		CallbackURL: u.settings.CallbackURL(ctx),
		NotifyURL:   u.settings.NotifyURL(ctx),
		Metadata:    initMetadata(txn),
	})
	if err != nil || !res.Success {
		msg := res.Message
		if err != nil {
			msg = err.Error()
		}
		log.Error().Err(err).Str("gateway_message", msg).Msg("gateway initialization failed")
		u.failInit(ctx, txn, msg)
		metrics.IncPaymentRequest(service, "init_failed")
		u.audit.Record(ctx, "payments", model.SeverityError, userID, "initialization of %s failed at %s", txn.Reference, gw.Name())
		return nil, domain.ErrPaymentInitFailed
	}

	if err := u.txns.SetCheckout(ctx, repository.NoTX, txn.ID, res.ProviderReference, res.CheckoutURL); err != nil {
		// The webhook still carries the provider reference, so the checkout stays usable.
		log.Warn().Err(err).Msg("storing checkout details failed")
	}
	txn.GatewayReference, txn.CheckoutURL = res.ProviderReference, res.CheckoutURL

	metrics.IncPaymentRequest(service, "created")
	u.audit.Record(ctx, "payments", model.SeverityInfo, userID, "payment %s created for %s (%s %s)", txn.Reference, req, model.FormatMinor(txn.Amount), txn.Currency)
	log.Info().Int64("amount", txn.Amount).Str("service", req.String()).Msg("payment request created")

	return &PaymentRequest{
		Reference:     txn.Reference,
		ServiceType:   service,
		Amount:        txn.Amount,
		DisplayAmount: model.FormatMinor(txn.Amount),
		Currency:      txn.Currency,
		Gateway:       txn.Gateway,
		PublicKey:     res.PublicKey,
		AccessCode:    res.AccessCode,
		CheckoutURL:   res.CheckoutURL,
		Email:         acct.Email,
		ExpiresAt:     txn.ExpiresAt,
	}, nil
}

// insertWithFreshReference retries on a reference collision; the unique
// constraint is the only arbiter.
func (u *paymentUC) insertWithFreshReference(ctx context.Context, txn *model.PaymentTransaction, now time.Time) error {
	var err error
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		txn.Reference = model.GenerateReference(txn.ServiceType, now, 1000+u.randN(9000))
		err = u.txns.Create(ctx, repository.NoTX, txn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return fmt.Errorf("insert transaction: %w", err)
		}
		u.log.Warn().Str("reference", txn.Reference).Int("attempt", attempt+1).Msg("reference collision")
	}
	return fmt.Errorf("allocate reference after %d attempts: %w", maxReferenceAttempts, err)
}

func (u *paymentUC) failInit(ctx context.Context, txn *model.PaymentTransaction, msg string) {
	next, _ := model.TryTransition(model.TransactionPending, model.EventInitFailed)
	if _, err := u.txns.UpdateStatusIfPending(ctx, repository.NoTX, txn.ID, next, model.GatewayData{Response: msg}, nil); err != nil {
		u.log.Error().Err(err).Str("reference", txn.Reference).Msg("marking transaction failed")
		return
	}
	metrics.IncPayment(string(next))
}

func initMetadata(txn *model.PaymentTransaction) map[string]string {
	m := map[string]string{
		"transaction_id": txn.ID,
		"user_id":        txn.UserID,
		"service_type":   string(txn.ServiceType),
	}
	if txn.AssessmentID != nil {
		m["assessment_id"] = *txn.AssessmentID
	}
	return m
}

func (u *paymentUC) activeGateway(ctx context.Context) (adapter.PaymentGateway, error) {
	name := u.settings.ActiveGateway(ctx)
	gw, ok := u.gateways.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: gateway %q is not available", domain.ErrConfiguration, name)
	}
	if err := u.settings.Validate(ctx); err != nil {
		return nil, err
	}
	return gw, nil
}

func (u *paymentUC) VerifyPayment(ctx context.Context, userID, reference string) (*VerificationResult, error) {
	start := time.Now()
	txn, err := u.txns.FindByReference(ctx, repository.NoTX, reference)
	if err != nil {
		observeVerify(start, "not_found")
		return nil, err
	}
	if txn.UserID != userID {
		observeVerify(start, "not_owned")
		u.audit.Record(ctx, "payments", model.SeverityWarning, userID, "verify of foreign transaction %s refused", reference)
		return nil, domain.ErrTransactionNotOwned
	}
	res, err := u.verify(ctx, txn, "")
	if err != nil {
		observeVerify(start, "gateway")
		return nil, err
	}
	observeVerify(start, "")
	return res, nil
}

func (u *paymentUC) ConfirmByReference(ctx context.Context, reference, providerReference string) (*VerificationResult, error) {
	txn, err := u.txns.FindByReference(ctx, repository.NoTX, reference)
	if err != nil {
		return nil, err
	}
	return u.verify(ctx, txn, providerReference)
}

func observeVerify(start time.Time, reason string) {
	result := "ok"
	if reason != "" {
		result = "fail"
	}
	metrics.PaymentVerifyRequests.WithLabelValues(result, reason).Inc()
	metrics.PaymentVerifyDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func (u *paymentUC) verify(ctx context.Context, txn *model.PaymentTransaction, providerReference string) (*VerificationResult, error) {
	if txn.Status.IsTerminal() {
		res := &VerificationResult{Reference: txn.Reference, Status: txn.Status, AlreadyProcessed: true}
		if txn.Status == model.TransactionCompleted {
			res.Grant, _ = u.grants.FindByTransaction(ctx, repository.NoTX, txn.ID)
		}
		return res, nil
	}
	gw, ok := u.gateways.Get(txn.Gateway)
	if !ok {
		return nil, fmt.Errorf("%w: gateway %q is not available", domain.ErrConfiguration, txn.Gateway)
	}
	if txn.GatewayReference == "" {
		txn.GatewayReference = providerReference
	}
	vr, err := gw.VerifyPayment(ctx, txn.Reference, txn.GatewayReference)
	if err != nil {
		u.log.Error().Err(err).Str("reference", txn.Reference).Str("gateway", txn.Gateway).Msg("gateway verification failed")
		return nil, domain.ErrVerificationFailed
	}
	return u.applyVerification(ctx, txn, vr)
}

func (u *paymentUC) applyVerification(ctx context.Context, txn *model.PaymentTransaction, vr adapter.VerifyResult) (*VerificationResult, error) {
	var status model.TransactionStatus
	msg := vr.Message
	switch vr.Status {
	case adapter.VerifyPending:
		return &VerificationResult{Reference: txn.Reference, Status: model.TransactionPending, Message: msg}, nil
	case adapter.VerifySuccess:
		status = model.TransactionCompleted
		if mismatch := amountMismatch(txn, vr); mismatch != "" {
			status, msg = model.TransactionFailed, mismatch
			u.audit.Record(ctx, "payments", model.SeverityCritical, txn.UserID, "%s: %s", txn.Reference, mismatch)
			u.alert(ctx, "Payment amount mismatch", fmt.Sprintf("reference %s: %s", txn.Reference, mismatch))
		}
	default:
		status = model.TransactionFailed
	}

	data := model.GatewayData{
		PaymentMethod:    vr.Channel,
		GatewayReference: vr.ProviderReference,
		Response:         vr.Raw,
	}
	if data.GatewayReference == "" {
		data.GatewayReference = txn.GatewayReference
	}
	cr, err := u.ProcessPaymentCallback(ctx, txn.Reference, status, data)
	if err != nil {
		return nil, err
	}
	return &VerificationResult{
		Reference:        cr.Reference,
		Status:           cr.Status,
		Message:          msg,
		AlreadyProcessed: cr.AlreadyProcessed,
		Grant:            cr.Grant,
	}, nil
}

func amountMismatch(txn *model.PaymentTransaction, vr adapter.VerifyResult) string {
	if vr.Amount > 0 && vr.Amount != txn.Amount {
		return fmt.Sprintf("gateway reports %d, expected %d", vr.Amount, txn.Amount)
	}
	if vr.Currency != "" && !strings.EqualFold(vr.Currency, txn.Currency) {
		return fmt.Sprintf("gateway reports currency %s, expected %s", vr.Currency, txn.Currency)
	}
	return ""
}

func (u *paymentUC) ProcessPaymentCallback(ctx context.Context, reference string, status model.TransactionStatus, data model.GatewayData) (*CallbackResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.ProcessPaymentCallback")()

	ev, err := model.EventForOutcome(status)
	if err != nil {
		return nil, err
	}

	var res *CallbackResult
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		txn, err := u.txns.FindByReference(ctx, tx, reference)
		if err != nil {
			return err
		}
		next, ok := model.TryTransition(txn.Status, ev)
		if !ok {
			res = &CallbackResult{Reference: reference, Status: txn.Status, AlreadyProcessed: true, Transaction: txn}
			return nil
		}
		var completedAt *time.Time
		if next == model.TransactionCompleted {
			at := u.now()
			completedAt = &at
		}
		updated, err := u.txns.UpdateStatusIfPending(ctx, tx, txn.ID, next, data, completedAt)
		if err != nil {
			return err
		}
		if !updated {
			res = &CallbackResult{Reference: reference, Status: txn.Status, AlreadyProcessed: true, Transaction: txn}
			return nil
		}
		txn.Status, txn.CompletedAt = next, completedAt
		txn.Apply(data)
		res = &CallbackResult{Reference: reference, Status: next, Transaction: txn}

		if next == model.TransactionCompleted {
			g, err := u.GrantServiceAccess(ctx, tx, txn.UserID, txn.ServiceRequest(), txn.ID)
			if err != nil {
				return fmt.Errorf("grant access: %w", err)
			}
			res.Grant = g
		}
		return nil
	})
	if err != nil {
		u.log.Error().Err(err).Str("reference", reference).Str("status", string(status)).Msg("callback processing failed")
		return nil, err
	}

	txn := res.Transaction
	if res.AlreadyProcessed {
		u.log.Warn().Str("reference", reference).Str("status", string(res.Status)).Msg("callback for a terminal transaction ignored")
		return res, nil
	}
	metrics.IncPayment(string(res.Status))
	sev := model.SeverityInfo
	if res.Status == model.TransactionCompleted {
		metrics.AddPaymentRevenue(txn.Currency, txn.Amount)
	} else {
		sev = model.SeverityWarning
	}
	u.audit.Record(ctx, "payments", sev, txn.UserID, "transaction %s %s", reference, res.Status)
	return res, nil
}

func (u *paymentUC) GrantServiceAccess(ctx context.Context, tx repository.Tx, userID string, req model.ServiceRequest, transactionID string) (*model.PaidService, error) {
	now := u.now()
	var expiresAt *time.Time
	if req.Type == model.ServiceReviewAssessment {
		at := now.Add(u.settings.ReviewAccessWindow(ctx))
		expiresAt = &at
	}
	g, err := model.NewPaidService(uuid.NewString(), userID, req, transactionID, expiresAt, now)
	if err != nil {
		return nil, err
	}
	if err := u.grants.Create(ctx, tx, g); err != nil {
		return nil, err
	}

	switch req.Type {
	case model.ServiceReviewAssessment:
		err = u.enrollments.MarkReviewPaid(ctx, tx, userID, req.AssessmentID, expiresAt)
	case model.ServiceRetakeAssessment:
		err = u.enrollments.MarkRetakePaid(ctx, tx, userID, req.AssessmentID)
	}
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Warn().Str("user_id", userID).Str("assessment_id", req.AssessmentID).Msg("no enrollment row to flag as paid")
	} else if err != nil {
		return nil, fmt.Errorf("flag enrollment: %w", err)
	}

	metrics.IncGrant(string(req.Type))
	return g, nil
}

func (u *paymentUC) EnsureGrant(ctx context.Context, reference string) (*model.PaidService, error) {
	var g *model.PaidService
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		txn, err := u.txns.FindByReference(ctx, tx, reference)
		if err != nil {
			return err
		}
		if txn.Status != model.TransactionCompleted {
			return domain.ErrPaymentNotCompleted
		}
		g, err = u.grants.FindByTransaction(ctx, tx, txn.ID)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		g, err = u.GrantServiceAccess(ctx, tx, txn.UserID, txn.ServiceRequest(), txn.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (u *paymentUC) MarkServiceAsUsed(ctx context.Context, userID string, req model.ServiceRequest) (bool, error) {
	g, err := u.ConsumeService(ctx, userID, req)
	return g != nil, err
}

func (u *paymentUC) ConsumeService(ctx context.Context, userID string, req model.ServiceRequest) (*model.PaidService, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	g, err := u.grants.ConsumeUse(ctx, repository.NoTX, userID, req.Type, req.ReferenceID(), u.now())
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncGrantConsumption(string(req.Type), "none")
		u.log.Warn().Str("user_id", userID).Str("service", req.String()).Msg("no usable grant to consume")
		return nil, nil
	}
	if err != nil {
		metrics.IncGrantConsumption(string(req.Type), "error")
		return nil, err
	}
	metrics.IncGrantConsumption(string(req.Type), "ok")
	u.audit.Record(ctx, "payments", model.SeverityInfo, userID, "%s used (%d/%d)", req, g.UsageCount, g.MaxUses)
	return g, nil
}

func (u *paymentUC) ConsumeGrant(ctx context.Context, tx repository.Tx, g *model.PaidService) (*model.PaidService, error) {
	service := string(g.ServiceType)
	used, err := u.grants.ConsumeGrant(ctx, tx, g.ID, u.now())
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncGrantConsumption(service, "none")
		return nil, domain.ErrNoAccess
	}
	if err != nil {
		metrics.IncGrantConsumption(service, "error")
		return nil, err
	}
	metrics.IncGrantConsumption(service, "ok")
	return used, nil
}

func (u *paymentUC) LatestGrant(ctx context.Context, userID string, req model.ServiceRequest) (*model.PaidService, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return u.grants.FindLatest(ctx, repository.NoTX, userID, req.Type, req.ReferenceID())
}

func (u *paymentUC) GrantForTransaction(ctx context.Context, transactionID string) (*model.PaidService, error) {
	return u.grants.FindByTransaction(ctx, repository.NoTX, transactionID)
}

func (u *paymentUC) FindTransaction(ctx context.Context, reference string) (*model.PaymentTransaction, error) {
	return u.txns.FindByReference(ctx, repository.NoTX, reference)
}

func (u *paymentUC) ListUserTransactions(ctx context.Context, userID string, limit int) []*model.PaymentTransaction {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := u.txns.ListByUser(ctx, repository.NoTX, userID, limit)
	if err != nil {
		u.log.Error().Err(err).Str("user_id", userID).Msg("history lookup failed")
		return []*model.PaymentTransaction{}
	}
	return out
}

func (u *paymentUC) ListPendingForReconcile(ctx context.Context, olderThan time.Duration, limit int) ([]*model.PaymentTransaction, error) {
	return u.txns.ListPendingOlderThan(ctx, repository.NoTX, u.now().Add(-olderThan), limit)
}

// CleanupExpiredRequests cancels pending transactions past expires_at.
func (u *paymentUC) CleanupExpiredRequests(ctx context.Context) (int, error) {
	n, err := u.txns.CancelExpiredPending(ctx, repository.NoTX, u.now())
	if err != nil {
		return 0, fmt.Errorf("cancel expired: %w", err)
	}
	metrics.AddSweepCancelled("expired", n)
	return int(n), nil
}

// CleanupOldPendingTransactions cancels pending transactions older than the
// stale threshold even when expires_at is still ahead.
func (u *paymentUC) CleanupOldPendingTransactions(ctx context.Context) (int, error) {
	cutoff := u.now().Add(-u.settings.StalePendingAge(ctx))
	n, err := u.txns.CancelPendingCreatedBefore(ctx, repository.NoTX, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cancel stale: %w", err)
	}
	metrics.AddSweepCancelled("stale", n)
	return int(n), nil
}

// Sweep runs both thresholds; one failing does not skip the other.
func (u *paymentUC) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	var errExpired, errStale error
	res.Expired, errExpired = u.CleanupExpiredRequests(ctx)
	res.Stale, errStale = u.CleanupOldPendingTransactions(ctx)
	if n := res.Expired + res.Stale; n > 0 {
		u.audit.Record(ctx, "payments", model.SeverityInfo, "", "sweep cancelled %d expired and %d stale transactions", res.Expired, res.Stale)
	}
	return res, errors.Join(errExpired, errStale)
}

func (u *paymentUC) alert(ctx context.Context, subject, text string) {
	if u.alerts == nil {
		return
	}
	if err := u.alerts.Alert(ctx, subject, text); err != nil {
		u.log.Warn().Err(err).Str("subject", subject).Msg("alert delivery failed")
	}
}
