// File: internal/infra/adapters/payment/expresspay_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/adapter"
)

const (
	ExpressPayName = "expresspay"

	KeyExpressPayMerchantID = "expresspay_merchant_id"
	KeyExpressPayAPIKey     = "expresspay_api_key"

	// ExpressPaySignatureHeader carries hex HMAC-SHA512 of the raw post body keyed with the api key.
	ExpressPaySignatureHeader = "X-ExpressPay-Signature"
)

var _ adapter.PaymentGateway = (*ExpressPayGateway)(nil)

// ExpressPayGateway drives the ExpressPay merchant API (form posts, JSON replies).
type ExpressPayGateway struct {
	cfg     adapter.ConfigStore
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
}

func NewExpressPayGateway(cfg adapter.ConfigStore, baseURL string, client *http.Client, logger *zerolog.Logger) *ExpressPayGateway {
	l := logger.With().Str("component", "expresspay").Logger()
	return &ExpressPayGateway{cfg: cfg, baseURL: strings.TrimRight(baseURL, "/"), client: client, log: &l}
}

func (g *ExpressPayGateway) Name() string { return ExpressPayName }

func (g *ExpressPayGateway) RequiredConfigKeys() []string {
	return []string{KeyExpressPayMerchantID, KeyExpressPayAPIKey}
}

type expressPaySubmitResponse struct {
	Status  int    `json:"status"`
	OrderID string `json:"order-id"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

type expressPayQueryResponse struct {
	Result        int             `json:"result"`
	ResultText    string          `json:"result-text"`
	OrderID       string          `json:"order-id"`
	Token         string          `json:"token"`
	TransactionID string          `json:"transaction-id"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
}

func (g *ExpressPayGateway) credentials(ctx context.Context) (merchantID, apiKey string, err error) {
	merchantID, ok1 := g.cfg.Get(ctx, KeyExpressPayMerchantID)
	apiKey, ok2 := g.cfg.Get(ctx, KeyExpressPayAPIKey)
	var missing []string
	if !ok1 || strings.TrimSpace(merchantID) == "" {
		missing = append(missing, KeyExpressPayMerchantID)
	}
	if !ok2 || strings.TrimSpace(apiKey) == "" {
		missing = append(missing, KeyExpressPayAPIKey)
	}
	if len(missing) > 0 {
		return "", "", fmt.Errorf("%w: %s", adapter.ErrGatewayNotConfigured, strings.Join(missing, ", "))
	}
	return merchantID, apiKey, nil
}

func (g *ExpressPayGateway) postForm(ctx context.Context, op, path string, form url.Values, out any) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	return roundTrip(g.client, ExpressPayName, op, httpReq, out)
}

func (g *ExpressPayGateway) InitializePayment(ctx context.Context, req adapter.InitRequest) (adapter.InitResult, error) {
	merchantID, apiKey, err := g.credentials(ctx)
	if err != nil {
		return adapter.InitResult{}, err
	}
	form := url.Values{}
	form.Set("merchant-id", merchantID)
	form.Set("api-key", apiKey)
	form.Set("firstname", req.FirstName)
	form.Set("lastname", req.LastName)
	form.Set("email", req.Email)
	form.Set("phonenumber", req.Phone)
	form.Set("username", req.Email)
	form.Set("currency", req.Currency)
	form.Set("amount", model.FormatMinor(req.Amount))
	form.Set("order-id", req.Reference)
	form.Set("order-desc", req.Description)
	form.Set("redirect-url", req.CallbackURL)
	if req.NotifyURL != "" {
		form.Set("post-url", req.NotifyURL)
	}

	var out expressPaySubmitResponse
	if _, err := g.postForm(ctx, "initialize", "/submit.php", form, &out); err != nil {
		g.log.Warn().Err(err).Str("reference", req.Reference).Msg("submit failed")
		return adapter.InitResult{Message: err.Error()}, err
	}
	if out.Status != 1 || out.Token == "" {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("submit rejected with status %d", out.Status)
		}
		return adapter.InitResult{Message: msg}, &HTTPError{Gateway: ExpressPayName, Op: "initialize", StatusCode: http.StatusOK, Message: msg}
	}
	return adapter.InitResult{
		Success:           true,
		CheckoutURL:       g.baseURL + "/checkout.php?token=" + url.QueryEscape(out.Token),
		ProviderReference: out.Token,
		AccessCode:        out.Token,
		Message:           out.Message,
	}, nil
}

// VerifyPayment queries by checkout token; ExpressPay cannot look up by order id.
func (g *ExpressPayGateway) VerifyPayment(ctx context.Context, reference, providerReference string) (adapter.VerifyResult, error) {
	if providerReference == "" {
		return adapter.VerifyResult{}, &HTTPError{Gateway: ExpressPayName, Op: "verify", Message: "no checkout token recorded for " + reference}
	}
	merchantID, apiKey, err := g.credentials(ctx)
	if err != nil {
		return adapter.VerifyResult{}, err
	}
	form := url.Values{}
	form.Set("merchant-id", merchantID)
	form.Set("api-key", apiKey)
	form.Set("token", providerReference)

	var out expressPayQueryResponse
	raw, err := g.postForm(ctx, "verify", "/query.php", form, &out)
	if err != nil {
		return adapter.VerifyResult{Raw: string(raw)}, err
	}
	status, msg := expressPayStatus(out.Result)
	if out.ResultText != "" {
		msg = out.ResultText
	}
	return adapter.VerifyResult{
		Status:            status,
		Message:           msg,
		Amount:            out.Amount.Shift(2).Round(0).IntPart(),
		Currency:          out.Currency,
		ProviderReference: providerReference,
		Raw:               string(raw),
	}, nil
}

func expressPayStatus(result int) (adapter.VerifyStatus, string) {
	switch result {
	case 1:
		return adapter.VerifySuccess, "payment approved"
	case 2:
		return adapter.VerifyFailed, "payment declined"
	case 3:
		return adapter.VerifyFailed, "payment error"
	case 4:
		return adapter.VerifyPending, "payment pending"
	default:
		return adapter.VerifyFailed, fmt.Sprintf("unrecognised gateway status: %d", result)
	}
}

// ParseWebhook decodes the form-encoded post-url notification.
func (g *ExpressPayGateway) ParseWebhook(ctx context.Context, payload []byte, signature string) (adapter.WebhookEvent, error) {
	_, apiKey, err := g.credentials(ctx)
	if err != nil {
		return adapter.WebhookEvent{}, err
	}
	if !VerifySHA512(apiKey, payload, signature) {
		return adapter.WebhookEvent{}, adapter.ErrInvalidSignature
	}
	form, err := url.ParseQuery(string(payload))
	if err != nil {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: %v", adapter.ErrMalformedPayload, err)
	}
	ref := form.Get("order-id")
	if ref == "" {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: missing order-id", adapter.ErrMalformedPayload)
	}
	raw, _ := json.Marshal(form)
	ev := adapter.WebhookEvent{
		Type:              adapter.EventUnknown,
		RawType:           "result:" + form.Get("result"),
		Reference:         ref,
		ProviderReference: form.Get("token"),
		Raw:               string(raw),
	}
	switch form.Get("result") {
	case "1":
		ev.Type = adapter.EventChargeSucceeded
	case "2", "3":
		ev.Type = adapter.EventChargeFailed
	}
	return ev, nil
}
