// File: internal/infra/adapters/payment/paystack_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"school-payments/internal/domain/ports/adapter"
)

const (
	PaystackName = "paystack"

	KeyPaystackPublic = "paystack_public_key"
	KeyPaystackSecret = "paystack_secret_key"

	// PaystackSignatureHeader carries hex HMAC-SHA512 of the raw body keyed with the secret key.
	PaystackSignatureHeader = "X-Paystack-Signature"
)

var _ adapter.PaymentGateway = (*PaystackGateway)(nil)

// PaystackGateway talks to the Paystack transaction API. Credentials are read
// from the config store on every call so rotations apply without a restart.
type PaystackGateway struct {
	cfg     adapter.ConfigStore
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
}

func NewPaystackGateway(cfg adapter.ConfigStore, baseURL string, client *http.Client, logger *zerolog.Logger) *PaystackGateway {
	l := logger.With().Str("component", "paystack").Logger()
	return &PaystackGateway{cfg: cfg, baseURL: strings.TrimRight(baseURL, "/"), client: client, log: &l}
}

func (g *PaystackGateway) Name() string { return PaystackName }

func (g *PaystackGateway) RequiredConfigKeys() []string {
	return []string{KeyPaystackPublic, KeyPaystackSecret}
}

type paystackInitPayload struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type paystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID              int64      `json:"id"`
		Status          string     `json:"status"`
		Reference       string     `json:"reference"`
		Amount          int64      `json:"amount"`
		Currency        string     `json:"currency"`
		Channel         string     `json:"channel"`
		GatewayResponse string     `json:"gateway_response"`
		PaidAt          *time.Time `json:"paid_at"`
	} `json:"data"`
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Channel   string `json:"channel"`
	} `json:"data"`
}

func (g *PaystackGateway) secret(ctx context.Context) (string, error) {
	v, ok := g.cfg.Get(ctx, KeyPaystackSecret)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: %s", adapter.ErrGatewayNotConfigured, KeyPaystackSecret)
	}
	return v, nil
}

func (g *PaystackGateway) InitializePayment(ctx context.Context, req adapter.InitRequest) (adapter.InitResult, error) {
	secret, err := g.secret(ctx)
	if err != nil {
		return adapter.InitResult{}, err
	}
	body, err := json.Marshal(paystackInitPayload{
		Email:       req.Email,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return adapter.InitResult{}, fmt.Errorf("encode paystack init: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return adapter.InitResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+secret)
	httpReq.Header.Set("Content-Type", "application/json")

	var out paystackInitResponse
	if _, err := roundTrip(g.client, PaystackName, "initialize", httpReq, &out); err != nil {
		g.log.Warn().Err(err).Str("reference", req.Reference).Msg("initialize failed")
		return adapter.InitResult{Message: err.Error()}, err
	}
	if !out.Status || out.Data.AuthorizationURL == "" {
		return adapter.InitResult{Message: out.Message}, &HTTPError{Gateway: PaystackName, Op: "initialize", StatusCode: http.StatusOK, Message: out.Message}
	}

	pub, _ := g.cfg.Get(ctx, KeyPaystackPublic)
	return adapter.InitResult{
		Success:           true,
		CheckoutURL:       out.Data.AuthorizationURL,
		ProviderReference: out.Data.AccessCode,
		AccessCode:        out.Data.AccessCode,
		PublicKey:         pub,
		Message:           out.Message,
	}, nil
}

// VerifyPayment looks the transaction up by our reference; providerReference is unused.
func (g *PaystackGateway) VerifyPayment(ctx context.Context, reference, _ string) (adapter.VerifyResult, error) {
	secret, err := g.secret(ctx)
	if err != nil {
		return adapter.VerifyResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return adapter.VerifyResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+secret)

	var out paystackVerifyResponse
	raw, err := roundTrip(g.client, PaystackName, "verify", httpReq, &out)
	if err != nil {
		return adapter.VerifyResult{Raw: string(raw)}, err
	}
	if !out.Status {
		return adapter.VerifyResult{Raw: string(raw)}, &HTTPError{Gateway: PaystackName, Op: "verify", StatusCode: http.StatusOK, Message: out.Message}
	}

	status, msg := paystackStatus(out.Data.Status)
	if out.Data.GatewayResponse != "" {
		msg = out.Data.GatewayResponse
	}
	res := adapter.VerifyResult{
		Status:            status,
		Message:           msg,
		Amount:            out.Data.Amount,
		Currency:          out.Data.Currency,
		Channel:           out.Data.Channel,
		ProviderReference: fmt.Sprintf("%d", out.Data.ID),
		Raw:               string(raw),
	}
	if status == adapter.VerifySuccess {
		res.PaidAt = out.Data.PaidAt
	}
	return res, nil
}

func paystackStatus(s string) (adapter.VerifyStatus, string) {
	switch strings.ToLower(s) {
	case "success":
		return adapter.VerifySuccess, "payment successful"
	case "failed", "abandoned", "reversed":
		return adapter.VerifyFailed, "payment " + strings.ToLower(s)
	case "ongoing", "pending", "processing", "queued":
		return adapter.VerifyPending, "payment pending"
	default:
		return adapter.VerifyFailed, "unrecognised gateway status: " + s
	}
}

// ParseWebhook authenticates x-paystack-signature against the raw body.
func (g *PaystackGateway) ParseWebhook(ctx context.Context, payload []byte, signature string) (adapter.WebhookEvent, error) {
	secret, err := g.secret(ctx)
	if err != nil {
		return adapter.WebhookEvent{}, err
	}
	if !VerifySHA512(secret, payload, signature) {
		return adapter.WebhookEvent{}, adapter.ErrInvalidSignature
	}
	var wh paystackWebhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: %v", adapter.ErrMalformedPayload, err)
	}
	ev := adapter.WebhookEvent{
		Type:      adapter.EventUnknown,
		RawType:   wh.Event,
		Reference: wh.Data.Reference,
		Channel:   wh.Data.Channel,
		Raw:       string(payload),
	}
	if wh.Data.ID != 0 {
		ev.ProviderReference = fmt.Sprintf("%d", wh.Data.ID)
	}
	switch wh.Event {
	case "charge.success":
		ev.Type = adapter.EventChargeSucceeded
	case "charge.failed":
		ev.Type = adapter.EventChargeFailed
	}
	return ev, nil
}
