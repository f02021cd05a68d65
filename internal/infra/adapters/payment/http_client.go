package payment

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"school-payments/internal/config"
	"school-payments/internal/domain/ports/adapter"
	"school-payments/internal/infra/metrics"
)

const maxResponseBody = 1 << 20

// NewHTTPClient bounds the whole exchange plus the dial and TLS phases separately.
func NewHTTPClient(cfg config.GatewayHTTPConfig) *http.Client {
	timeout, connect := cfg.Timeout, cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if connect <= 0 {
		connect = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// HTTPError is a non-2xx or undecodable gateway answer.
type HTTPError struct {
	Gateway    string
	Op         string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: http %d: %s", e.Gateway, e.Op, e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error { return adapter.ErrGatewayHTTP }

// roundTrip sends req, records latency, and decodes a JSON body into out.
// It returns the raw body so callers can keep it for audit.
func roundTrip(client *http.Client, gateway, op string, req *http.Request, out any) ([]byte, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.ObserveGatewayRequest(gateway, op, "unreachable", time.Since(start))
		return nil, fmt.Errorf("%w: %s %s: %v", adapter.ErrGatewayUnreachable, gateway, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		metrics.ObserveGatewayRequest(gateway, op, "unreachable", time.Since(start))
		return nil, fmt.Errorf("%w: %s %s: read body: %v", adapter.ErrGatewayUnreachable, gateway, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveGatewayRequest(gateway, op, "http_error", time.Since(start))
		return raw, &HTTPError{Gateway: gateway, Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			metrics.ObserveGatewayRequest(gateway, op, "http_error", time.Since(start))
			return raw, &HTTPError{Gateway: gateway, Op: op, StatusCode: resp.StatusCode, Message: "undecodable response body"}
		}
	}
	metrics.ObserveGatewayRequest(gateway, op, "ok", time.Since(start))
	return raw, nil
}

// errorMessage pulls a provider "message" field, else a short body preview.
func errorMessage(raw []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &m) == nil && m.Message != "" {
		return m.Message
	}
	if len(raw) > 200 {
		return string(raw[:200])
	}
	return string(raw)
}
