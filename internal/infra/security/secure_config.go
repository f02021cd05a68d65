package security

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/adapter"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/infra/metrics"
)

const (
	keyActiveGateway     = "active_gateway"
	defaultActiveGateway = "paystack"
)

var _ adapter.ConfigStore = (*SecureConfig)(nil)

type cachedValue struct {
	value    string
	present  bool
	cachedAt time.Time
}

// SecureConfig is the payment key/value store. Encrypted rows are decrypted on
// read and the plaintext is cached in memory for ttl. Dispose drops the cache
// and wipes the key.
type SecureConfig struct {
	repo     repository.ConfigRepository
	enc      *EncryptionService
	ttl      time.Duration
	required map[string][]string
	audit    repository.ActivityRepository
	log      *zerolog.Logger
	now      func() time.Time

	// mu guards enc and cache.
	mu    sync.RWMutex
	cache map[string]cachedValue
}

// NewSecureConfig: required maps gateway name to the keys it cannot run without.
func NewSecureConfig(repo repository.ConfigRepository, enc *EncryptionService, ttl time.Duration, required map[string][]string, logger *zerolog.Logger) *SecureConfig {
	l := logger.With().Str("component", "secure_config").Logger()
	return &SecureConfig{
		repo:     repo,
		enc:      enc,
		ttl:      ttl,
		required: required,
		log:      &l,
		now:      time.Now,
		cache:    make(map[string]cachedValue),
	}
}

// WithAudit records an activity entry whenever a sensitive key is read from storage.
func (s *SecureConfig) WithAudit(repo repository.ActivityRepository) *SecureConfig {
	s.audit = repo
	return s
}

// RequireGateways registers each gateway's required keys for ValidateConfig.
// Call before the store is shared.
func (s *SecureConfig) RequireGateways(gateways ...adapter.PaymentGateway) *SecureConfig {
	if s.required == nil {
		s.required = make(map[string][]string, len(gateways))
	}
	for _, g := range gateways {
		s.required[g.Name()] = g.RequiredConfigKeys()
	}
	return s
}

// Get never returns an error: absent, unreadable and undecryptable keys all
// come back as ok=false so callers fall through to their defaults.
func (s *SecureConfig) Get(ctx context.Context, key string) (string, bool) {
	if v, ok := s.cached(key); ok {
		metrics.IncConfigRead("cache_hit")
		return v.value, v.present
	}

	entry, err := s.repo.Find(ctx, repository.NoTX, key)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncConfigRead("absent")
		s.store(key, "", false)
		return "", false
	}
	if err != nil {
		metrics.IncConfigRead("error")
		s.log.Error().Err(err).Str("key", key).Msg("config read failed")
		return "", false
	}

	value := entry.Value
	if entry.IsEncrypted {
		pt, err := s.decrypt(entry.Value)
		if err != nil {
			metrics.IncConfigRead("decrypt_error")
			s.log.Error().Err(err).Str("key", key).Msg("config value failed to decrypt")
			return "", false
		}
		value = pt
	}

	if err := s.repo.TouchAccess(ctx, repository.NoTX, key, s.now()); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("touch last_accessed failed")
	}
	if s.audit != nil && model.IsSensitiveConfigKey(key) {
		a := &model.Activity{
			Component: "secure_config",
			Message:   "sensitive config key read: " + key,
			Severity:  model.SeverityInfo,
			CreatedAt: s.now(),
		}
		if err := s.audit.Save(ctx, repository.NoTX, a); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("audit sensitive read failed")
		}
	}
	metrics.IncConfigRead("db")
	s.store(key, value, true)
	return value, true
}

func (s *SecureConfig) Set(ctx context.Context, key, value string, encrypt bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty config key", domain.ErrInvalidArgument)
	}
	stored := value
	if encrypt {
		ct, err := s.encrypt(value)
		if errors.Is(err, errNoKey) {
			return fmt.Errorf("%w: no encryption key loaded", domain.ErrConfiguration)
		}
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
		stored = ct
	}
	e := &model.ConfigEntry{Key: key, Value: stored, IsEncrypted: encrypt, UpdatedAt: s.now()}
	if err := s.repo.Upsert(ctx, repository.NoTX, e); err != nil {
		return err
	}
	s.store(key, value, true)
	s.log.Info().Str("key", key).Bool("encrypted", encrypt).Msg("config value updated")
	return nil
}

// ValidateConfig checks the active gateway's required keys and names every missing one.
func (s *SecureConfig) ValidateConfig(ctx context.Context) error {
	gw, ok := s.Get(ctx, keyActiveGateway)
	if !ok || strings.TrimSpace(gw) == "" {
		gw = defaultActiveGateway
	}
	keys, known := s.required[gw]
	if !known {
		return fmt.Errorf("%w: unknown active gateway %q", domain.ErrConfiguration, gw)
	}
	var missing []string
	for _, k := range keys {
		if v, ok := s.Get(ctx, k); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s is missing %s", domain.ErrConfiguration, gw, strings.Join(missing, ", "))
	}
	return nil
}

// Invalidate drops one cached key, or all when key is empty.
func (s *SecureConfig) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		s.cache = make(map[string]cachedValue)
		return
	}
	delete(s.cache, key)
}

// Dispose releases decrypted values and the key material.
func (s *SecureConfig) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedValue)
	if s.enc != nil {
		s.enc.Zeroize()
		s.enc = nil
	}
}

var errNoKey = errors.New("no encryption key loaded")

// encrypt and decrypt hold the read lock for the whole call so Dispose cannot
// wipe the key under them.
func (s *SecureConfig) encrypt(plaintext string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.enc == nil {
		return "", errNoKey
	}
	return s.enc.Encrypt(plaintext)
}

func (s *SecureConfig) decrypt(ciphertext string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.enc == nil {
		return "", errNoKey
	}
	return s.enc.Decrypt(ciphertext)
}

func (s *SecureConfig) cached(key string) (cachedValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	if !ok || s.now().Sub(v.cachedAt) >= s.ttl {
		return cachedValue{}, false
	}
	return v, true
}

func (s *SecureConfig) store(key, value string, present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cachedValue{value: value, present: present, cachedAt: s.now()}
}
