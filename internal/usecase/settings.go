package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"school-payments/internal/domain/ports/adapter"
)

// Tunables stored in the secure config table.
const (
	KeyPaymentsEnabled             = "payments_enabled"
	KeyPasswordResetPaymentEnabled = "password_reset_payment_enabled"
	KeyActiveGateway               = "active_gateway"
	KeyCurrency                    = "currency"
	KeyPaymentTimeoutMinutes       = "payment_timeout_minutes"
	KeyReviewAccessHours           = "review_access_hours"
	KeyRetakeCooldownHours         = "retake_cooldown_hours"
	KeyStalePendingMinutes         = "stale_pending_minutes"
	KeyCallbackURL                 = "callback_url"
	KeyNotifyURL                   = "notify_url"
)

// DefaultSettings are used for absent or unparsable keys and seeded by cmd/seed.
var DefaultSettings = map[string]string{
	KeyPaymentsEnabled:             "true",
	KeyPasswordResetPaymentEnabled: "true",
	KeyActiveGateway:               "paystack",
	KeyCurrency:                    "GHS",
	KeyPaymentTimeoutMinutes:       "15",
	KeyReviewAccessHours:           "24",
	KeyRetakeCooldownHours:         "2",
	KeyStalePendingMinutes:         "60",
}

// Settings reads typed tunables through the config store, falling back to defaults.
type Settings struct {
	store adapter.ConfigStore
}

func NewSettings(store adapter.ConfigStore) *Settings {
	return &Settings{store: store}
}

func (s *Settings) String(ctx context.Context, key string) string {
	if v, ok := s.store.Get(ctx, key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return DefaultSettings[key]
}

func (s *Settings) Bool(ctx context.Context, key string) bool {
	b, err := strconv.ParseBool(s.String(ctx, key))
	if err != nil {
		b, _ = strconv.ParseBool(DefaultSettings[key])
	}
	return b
}

func (s *Settings) Int(ctx context.Context, key string) int {
	n, err := strconv.Atoi(s.String(ctx, key))
	if err != nil || n <= 0 {
		n, _ = strconv.Atoi(DefaultSettings[key])
	}
	return n
}

func (s *Settings) PaymentsEnabled(ctx context.Context) bool {
	return s.Bool(ctx, KeyPaymentsEnabled)
}

// PasswordResetPaymentRequired is on only when both payment toggles are.
func (s *Settings) PasswordResetPaymentRequired(ctx context.Context) bool {
	return s.PaymentsEnabled(ctx) && s.Bool(ctx, KeyPasswordResetPaymentEnabled)
}

func (s *Settings) ActiveGateway(ctx context.Context) string {
	return strings.ToLower(s.String(ctx, KeyActiveGateway))
}

func (s *Settings) Currency(ctx context.Context) string {
	return strings.ToUpper(s.String(ctx, KeyCurrency))
}

func (s *Settings) PaymentTimeout(ctx context.Context) time.Duration {
	return time.Duration(s.Int(ctx, KeyPaymentTimeoutMinutes)) * time.Minute
}

func (s *Settings) ReviewAccessWindow(ctx context.Context) time.Duration {
	return time.Duration(s.Int(ctx, KeyReviewAccessHours)) * time.Hour
}

func (s *Settings) RetakeCooldown(ctx context.Context) time.Duration {
	return time.Duration(s.Int(ctx, KeyRetakeCooldownHours)) * time.Hour
}

func (s *Settings) StalePendingAge(ctx context.Context) time.Duration {
	return time.Duration(s.Int(ctx, KeyStalePendingMinutes)) * time.Minute
}

func (s *Settings) CallbackURL(ctx context.Context) string { return s.String(ctx, KeyCallbackURL) }

func (s *Settings) NotifyURL(ctx context.Context) string { return s.String(ctx, KeyNotifyURL) }

// Validate checks the active gateway's credentials.
func (s *Settings) Validate(ctx context.Context) error { return s.store.ValidateConfig(ctx) }
