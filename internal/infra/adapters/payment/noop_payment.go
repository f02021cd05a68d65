package payment

import (
	"context"
	"fmt"
	"sync"

	"school-payments/internal/domain/ports/adapter"
)

const NoopName = "noop"

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway settles every checkout it opened. Dev and tests only.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	intents map[string]int64 // reference -> amount (minor units)
	failed  map[string]bool
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		intents: make(map[string]int64),
		failed:  make(map[string]bool),
	}
}

func (g *NoopPaymentGateway) Name() string { return NoopName }

func (g *NoopPaymentGateway) RequiredConfigKeys() []string { return nil }

func (g *NoopPaymentGateway) next() string {
	g.seq++
	return fmt.Sprintf("noop-%d", g.seq)
}

// Decline makes the next verification of reference report a failure.
func (g *NoopPaymentGateway) Decline(reference string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed[reference] = true
}

func (g *NoopPaymentGateway) InitializePayment(ctx context.Context, req adapter.InitRequest) (adapter.InitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	token := g.next()
	g.intents[req.Reference] = req.Amount
	return adapter.InitResult{
		Success:           true,
		CheckoutURL:       "https://example.test/pay/" + token,
		ProviderReference: token,
		AccessCode:        token,
	}, nil
}

func (g *NoopPaymentGateway) VerifyPayment(ctx context.Context, reference, providerReference string) (adapter.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amount, ok := g.intents[reference]
	if !ok {
		return adapter.VerifyResult{}, &HTTPError{Gateway: NoopName, Op: "verify", StatusCode: 404, Message: "reference not found"}
	}
	if g.failed[reference] {
		return adapter.VerifyResult{Status: adapter.VerifyFailed, Message: "declined", Amount: amount, ProviderReference: providerReference}, nil
	}
	return adapter.VerifyResult{Status: adapter.VerifySuccess, Message: "approved", Amount: amount, Channel: "noop", ProviderReference: providerReference}, nil
}

// ParseWebhook accepts "reference" or "!reference" (declined) without a signature.
func (g *NoopPaymentGateway) ParseWebhook(ctx context.Context, payload []byte, signature string) (adapter.WebhookEvent, error) {
	ref := string(payload)
	if ref == "" {
		return adapter.WebhookEvent{}, adapter.ErrMalformedPayload
	}
	ev := adapter.WebhookEvent{Type: adapter.EventChargeSucceeded, RawType: "noop", Reference: ref, Raw: ref}
	if ref[0] == '!' {
		ev.Type, ev.Reference = adapter.EventChargeFailed, ref[1:]
	}
	return ev, nil
}
