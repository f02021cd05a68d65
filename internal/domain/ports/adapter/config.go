package adapter

import "context"

// ConfigStore is the secure key/value configuration used by payments.
type ConfigStore interface {
	// Get returns the plaintext value; ok is false when the key is absent or unreadable.
	Get(ctx context.Context, key string) (value string, ok bool)
	// Set writes a value, encrypting it first when encrypt is true.
	Set(ctx context.Context, key, value string, encrypt bool) error
	// ValidateConfig checks that the active gateway has all required keys.
	ValidateConfig(ctx context.Context) error
}
