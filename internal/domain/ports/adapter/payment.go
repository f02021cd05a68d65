package adapter

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrGatewayUnreachable covers transport failures: DNS, connect, TLS, timeouts.
	ErrGatewayUnreachable = errors.New("payment gateway unreachable")
	// ErrGatewayHTTP is a non-2xx answer or an undecodable body.
	ErrGatewayHTTP = errors.New("payment gateway returned an error")
	// ErrGatewayNotConfigured means credentials for the gateway are missing.
	ErrGatewayNotConfigured = errors.New("payment gateway is not configured")
	// ErrInvalidSignature is a webhook whose HMAC does not match the raw body.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedPayload is a webhook body that cannot be parsed.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

type VerifyStatus string

const (
	VerifySuccess VerifyStatus = "success"
	VerifyFailed  VerifyStatus = "failed"
	VerifyPending VerifyStatus = "pending"
)

type WebhookEventType string

const (
	EventChargeSucceeded WebhookEventType = "charge_succeeded"
	EventChargeFailed    WebhookEventType = "charge_failed"
	EventUnknown         WebhookEventType = "unknown"
)

// InitRequest is what a gateway needs to open a checkout.
type InitRequest struct {
	Reference   string
	Amount      int64 // minor units
	Currency    string
	Email       string
	FirstName   string
	LastName    string
	Phone       string
	Description string
	CallbackURL string
	// NotifyURL receives server-to-server status posts, for gateways that take one per request.
	NotifyURL string
	Metadata  map[string]string
}

type InitResult struct {
	Success           bool
	CheckoutURL       string
	ProviderReference string
	AccessCode        string
	PublicKey         string
	Message           string
}

type VerifyResult struct {
	Status            VerifyStatus
	Message           string
	Amount            int64 // minor units, 0 when the provider does not report it
	Currency          string
	Channel           string
	ProviderReference string
	PaidAt            *time.Time
	Raw               string
}

type WebhookEvent struct {
	Type              WebhookEventType
	RawType           string
	Reference         string
	ProviderReference string
	Channel           string
	Raw               string
}

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Name() string
	// InitializePayment opens a hosted checkout for one transaction reference.
	InitializePayment(ctx context.Context, req InitRequest) (InitResult, error)
	// VerifyPayment asks the provider for the authoritative status of a reference.
	VerifyPayment(ctx context.Context, reference, providerReference string) (VerifyResult, error)
	// ParseWebhook authenticates and decodes a raw webhook body.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (WebhookEvent, error)
	// RequiredConfigKeys lists the secure-config keys the gateway cannot run without.
	RequiredConfigKeys() []string
}

// GatewaySet resolves gateways by name.
type GatewaySet struct {
	byName map[string]PaymentGateway
}

func NewGatewaySet(gateways ...PaymentGateway) *GatewaySet {
	s := &GatewaySet{byName: make(map[string]PaymentGateway, len(gateways))}
	for _, g := range gateways {
		if g != nil {
			s.byName[g.Name()] = g
		}
	}
	return s
}

func (s *GatewaySet) Get(name string) (PaymentGateway, bool) {
	if s == nil {
		return nil, false
	}
	g, ok := s.byName[name]
	return g, ok
}

func (s *GatewaySet) Names() []string {
	out := make([]string, 0, len(s.byName))
	for n := range s.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
