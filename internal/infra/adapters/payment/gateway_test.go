//go:build !integration

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school-payments/internal/config"
	"school-payments/internal/domain/ports/adapter"
)

type mapConfig map[string]string

func (m mapConfig) Get(_ context.Context, key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}
func (m mapConfig) Set(_ context.Context, key, value string, _ bool) error {
	m[key] = value
	return nil
}
func (m mapConfig) ValidateConfig(context.Context) error { return nil }

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func paystackConfig() mapConfig {
	return mapConfig{KeyPaystackPublic: "pk_test_1", KeyPaystackSecret: "sk_test_1"}
}

func TestPaystackInitialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		require.Equal(t, "Bearer sk_test_1", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 500, body["amount"])
		assert.Equal(t, "PAS_1_1000", body["reference"])
		_, _ = io.WriteString(w, `{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"PAS_1_1000"}}`)
	}))
	defer srv.Close()

	gw := NewPaystackGateway(paystackConfig(), srv.URL, srv.Client(), testLogger())
	res, err := gw.InitializePayment(context.Background(), adapter.InitRequest{
		Reference: "PAS_1_1000", Amount: 500, Currency: "GHS", Email: "a@school.test",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.CheckoutURL)
	assert.Equal(t, "abc", res.AccessCode)
	assert.Equal(t, "pk_test_1", res.PublicKey)
}

func TestPaystackInitializeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":false,"message":"Invalid email"}`)
	}))
	defer srv.Close()

	gw := NewPaystackGateway(paystackConfig(), srv.URL, srv.Client(), testLogger())
	_, err := gw.InitializePayment(context.Background(), adapter.InitRequest{Reference: "r"})
	require.ErrorIs(t, err, adapter.ErrGatewayHTTP)
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.StatusCode)
	assert.Equal(t, "Invalid email", he.Message)
}

func TestPaystackMissingSecret(t *testing.T) {
	gw := NewPaystackGateway(mapConfig{}, "http://unused", http.DefaultClient, testLogger())
	_, err := gw.InitializePayment(context.Background(), adapter.InitRequest{Reference: "r"})
	require.ErrorIs(t, err, adapter.ErrGatewayNotConfigured)
}

func TestPaystackVerifyStatusMapping(t *testing.T) {
	cases := map[string]adapter.VerifyStatus{
		"success":    adapter.VerifySuccess,
		"failed":     adapter.VerifyFailed,
		"abandoned":  adapter.VerifyFailed,
		"reversed":   adapter.VerifyFailed,
		"ongoing":    adapter.VerifyPending,
		"processing": adapter.VerifyPending,
		"queued":     adapter.VerifyPending,
		"weird":      adapter.VerifyFailed,
	}
	for status, want := range cases {
		status, want := status, want
		t.Run(status, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/transaction/verify/REV_1_2000", r.URL.Path)
				_, _ = io.WriteString(w, `{"status":true,"message":"ok","data":{"id":77,"status":"`+status+`","reference":"REV_1_2000","amount":200,"currency":"GHS","channel":"mobile_money","paid_at":"2026-01-02T03:04:05Z"}}`)
			}))
			defer srv.Close()

			gw := NewPaystackGateway(paystackConfig(), srv.URL, srv.Client(), testLogger())
			res, err := gw.VerifyPayment(context.Background(), "REV_1_2000", "")
			require.NoError(t, err)
			assert.Equal(t, want, res.Status)
			assert.EqualValues(t, 200, res.Amount)
			assert.Equal(t, "77", res.ProviderReference)
			if want == adapter.VerifySuccess {
				require.NotNil(t, res.PaidAt)
			} else {
				assert.Nil(t, res.PaidAt)
			}
		})
	}
}

func TestPaystackUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewHTTPClient(config.GatewayHTTPConfig{Timeout: 50 * time.Millisecond, ConnectTimeout: 50 * time.Millisecond})
	gw := NewPaystackGateway(paystackConfig(), srv.URL, client, testLogger())
	_, err := gw.VerifyPayment(context.Background(), "r", "")
	require.ErrorIs(t, err, adapter.ErrGatewayUnreachable)
}

func TestPaystackWebhook(t *testing.T) {
	gw := NewPaystackGateway(paystackConfig(), "http://unused", http.DefaultClient, testLogger())
	body := []byte(`{"event":"charge.success","data":{"id":9,"reference":"RET_1_3000","status":"success","channel":"card"}}`)

	t.Run("valid signature", func(t *testing.T) {
		ev, err := gw.ParseWebhook(context.Background(), body, SignSHA512("sk_test_1", body))
		require.NoError(t, err)
		assert.Equal(t, adapter.EventChargeSucceeded, ev.Type)
		assert.Equal(t, "RET_1_3000", ev.Reference)
		assert.Equal(t, "9", ev.ProviderReference)
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := SignSHA512("sk_test_1", body)
		tampered := append([]byte{}, body...)
		tampered[len(tampered)-3] = 'x'
		_, err := gw.ParseWebhook(context.Background(), tampered, sig)
		require.ErrorIs(t, err, adapter.ErrInvalidSignature)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := gw.ParseWebhook(context.Background(), body, SignSHA512("sk_other", body))
		require.ErrorIs(t, err, adapter.ErrInvalidSignature)
	})

	t.Run("failed and unknown events", func(t *testing.T) {
		failed := []byte(`{"event":"charge.failed","data":{"reference":"R"}}`)
		ev, err := gw.ParseWebhook(context.Background(), failed, SignSHA512("sk_test_1", failed))
		require.NoError(t, err)
		assert.Equal(t, adapter.EventChargeFailed, ev.Type)

		other := []byte(`{"event":"transfer.success","data":{"reference":"R"}}`)
		ev, err = gw.ParseWebhook(context.Background(), other, SignSHA512("sk_test_1", other))
		require.NoError(t, err)
		assert.Equal(t, adapter.EventUnknown, ev.Type)
		assert.Equal(t, "transfer.success", ev.RawType)
	})
}

func expressPayConfig() mapConfig {
	return mapConfig{KeyExpressPayMerchantID: "m-1", KeyExpressPayAPIKey: "api-1"}
}

func TestExpressPayInitialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/submit.php", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "m-1", r.PostForm.Get("merchant-id"))
		assert.Equal(t, "api-1", r.PostForm.Get("api-key"))
		assert.Equal(t, "5.00", r.PostForm.Get("amount"))
		assert.Equal(t, "PAS_1_1000", r.PostForm.Get("order-id"))
		assert.Equal(t, "https://pay.school.test/hook", r.PostForm.Get("post-url"))
		_, _ = io.WriteString(w, `{"status":1,"order-id":"PAS_1_1000","token":"tok 1","message":"Success"}`)
	}))
	defer srv.Close()

	gw := NewExpressPayGateway(expressPayConfig(), srv.URL, srv.Client(), testLogger())
	res, err := gw.InitializePayment(context.Background(), adapter.InitRequest{
		Reference: "PAS_1_1000", Amount: 500, Currency: "GHS", Email: "a@school.test",
		NotifyURL: "https://pay.school.test/hook",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, srv.URL+"/checkout.php?token=tok+1", res.CheckoutURL)
	assert.Equal(t, "tok 1", res.ProviderReference)
}

func TestExpressPayInitializeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":2,"message":"Invalid Credentials"}`)
	}))
	defer srv.Close()

	gw := NewExpressPayGateway(expressPayConfig(), srv.URL, srv.Client(), testLogger())
	res, err := gw.InitializePayment(context.Background(), adapter.InitRequest{Reference: "r"})
	require.ErrorIs(t, err, adapter.ErrGatewayHTTP)
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid Credentials", res.Message)
}

func TestExpressPayMissingCredentials(t *testing.T) {
	gw := NewExpressPayGateway(mapConfig{KeyExpressPayMerchantID: "m"}, "http://unused", http.DefaultClient, testLogger())
	_, err := gw.InitializePayment(context.Background(), adapter.InitRequest{Reference: "r"})
	require.ErrorIs(t, err, adapter.ErrGatewayNotConfigured)
	assert.Contains(t, err.Error(), KeyExpressPayAPIKey)
}

func TestExpressPayVerify(t *testing.T) {
	cases := []struct {
		result int
		want   adapter.VerifyStatus
	}{
		{1, adapter.VerifySuccess},
		{2, adapter.VerifyFailed},
		{3, adapter.VerifyFailed},
		{4, adapter.VerifyPending},
		{9, adapter.VerifyFailed},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(fmt.Sprintf("result_%d", tc.result), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/query.php", r.URL.Path)
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "tok", r.PostForm.Get("token"))
				_ = json.NewEncoder(w).Encode(map[string]any{
					"result": tc.result, "order-id": "REV_1_1", "token": "tok", "currency": "GHS", "amount": "2.00",
				})
			}))
			defer srv.Close()

			gw := NewExpressPayGateway(expressPayConfig(), srv.URL, srv.Client(), testLogger())
			res, err := gw.VerifyPayment(context.Background(), "REV_1_1", "tok")
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
			assert.EqualValues(t, 200, res.Amount)
		})
	}

	t.Run("without token", func(t *testing.T) {
		gw := NewExpressPayGateway(expressPayConfig(), "http://unused", http.DefaultClient, testLogger())
		_, err := gw.VerifyPayment(context.Background(), "REV_1_1", "")
		require.ErrorIs(t, err, adapter.ErrGatewayHTTP)
	})
}

func TestExpressPayWebhook(t *testing.T) {
	gw := NewExpressPayGateway(expressPayConfig(), "http://unused", http.DefaultClient, testLogger())
	body := []byte(url.Values{"order-id": {"REV_1_1"}, "token": {"tok"}, "result": {"1"}}.Encode())

	ev, err := gw.ParseWebhook(context.Background(), body, SignSHA512("api-1", body))
	require.NoError(t, err)
	assert.Equal(t, adapter.EventChargeSucceeded, ev.Type)
	assert.Equal(t, "REV_1_1", ev.Reference)
	assert.Equal(t, "tok", ev.ProviderReference)

	_, err = gw.ParseWebhook(context.Background(), body, "deadbeef")
	require.ErrorIs(t, err, adapter.ErrInvalidSignature)

	noRef := []byte("result=1")
	_, err = gw.ParseWebhook(context.Background(), noRef, SignSHA512("api-1", noRef))
	require.ErrorIs(t, err, adapter.ErrMalformedPayload)
}

func TestNoopGateway(t *testing.T) {
	ctx := context.Background()
	gw := NewNoopPaymentGateway()
	res, err := gw.InitializePayment(ctx, adapter.InitRequest{Reference: "A", Amount: 300})
	require.NoError(t, err)

	vr, err := gw.VerifyPayment(ctx, "A", res.ProviderReference)
	require.NoError(t, err)
	assert.Equal(t, adapter.VerifySuccess, vr.Status)
	assert.EqualValues(t, 300, vr.Amount)

	gw.Decline("A")
	vr, err = gw.VerifyPayment(ctx, "A", res.ProviderReference)
	require.NoError(t, err)
	assert.Equal(t, adapter.VerifyFailed, vr.Status)

	_, err = gw.VerifyPayment(ctx, "missing", "")
	require.ErrorIs(t, err, adapter.ErrGatewayHTTP)

	ev, err := gw.ParseWebhook(ctx, []byte("!A"), "")
	require.NoError(t, err)
	assert.Equal(t, adapter.EventChargeFailed, ev.Type)
	assert.Equal(t, "A", ev.Reference)
}

func TestVerifySHA512(t *testing.T) {
	body := []byte("payload")
	sig := SignSHA512("k", body)
	assert.True(t, VerifySHA512("k", body, sig))
	assert.True(t, VerifySHA512("k", body, " "+sig+" "))
	assert.False(t, VerifySHA512("", body, sig))
	assert.False(t, VerifySHA512("k", body, ""))
	assert.False(t, VerifySHA512("k", []byte("payload2"), sig))
}
