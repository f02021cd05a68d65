package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignSHA512 returns the lowercase hex HMAC-SHA512 of body under key.
func SignSHA512(key string, body []byte) string {
	h := hmac.New(sha512.New, []byte(key))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySHA512 compares in constant time over the raw body, never a re-encoding of it.
func VerifySHA512(key string, body []byte, signature string) bool {
	if key == "" || signature == "" {
		return false
	}
	want := SignSHA512(key, body)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// SignatureHeader names the request header a gateway signs its webhooks in.
func SignatureHeader(gateway string) string {
	switch gateway {
	case PaystackName:
		return PaystackSignatureHeader
	case ExpressPayName:
		return ExpressPaySignatureHeader
	default:
		return "X-Signature"
	}
}
