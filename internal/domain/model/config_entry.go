package model

import (
	"strings"
	"time"
)

// ConfigEntry is one row of the key/value payment configuration.
// When IsEncrypted is set, Value holds base64(IV || ciphertext).
type ConfigEntry struct {
	Key          string
	Value        string
	IsEncrypted  bool
	AccessCount  int64
	LastAccessed *time.Time
	UpdatedAt    time.Time
}

// IsSensitiveConfigKey reports whether a key must be stored encrypted.
func IsSensitiveConfigKey(key string) bool {
	for _, suffix := range []string{"_secret_key", "_api_key", "_private_key", "_secret"} {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}
