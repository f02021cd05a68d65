package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/adapter"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/infra/metrics"
)

// Compile-time check
var _ ConfigUseCase = (*configUC)(nil)

type ConfigUseCase interface {
	// Set stores a value, encrypting secret-looking keys regardless of the caller.
	Set(ctx context.Context, adminID, key, value string) error
	Keys(ctx context.Context) ([]string, error)
	Validate(ctx context.Context) error
}

type configUC struct {
	store adapter.ConfigStore
	repo  repository.ConfigRepository
	audit *Auditor
	log   *zerolog.Logger
}

func NewConfigUseCase(store adapter.ConfigStore, repo repository.ConfigRepository, audit *Auditor, logger *zerolog.Logger) *configUC {
	return &configUC{store: store, repo: repo, audit: audit, log: logger}
}

func (u *configUC) Set(ctx context.Context, adminID, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return fmt.Errorf("%w: empty key", domain.ErrInvalidArgument)
	}
	encrypt := model.IsSensitiveConfigKey(key)
	if err := u.store.Set(ctx, key, value, encrypt); err != nil {
		metrics.IncAdminAction("set_config", "error")
		return err
	}
	metrics.IncAdminAction("set_config", "ok")
	// Values are never logged, only the key.
	u.audit.Record(ctx, "admin", model.SeverityInfo, adminID, "config key %s updated (encrypted=%t)", key, encrypt)
	return nil
}

func (u *configUC) Keys(ctx context.Context) ([]string, error) {
	return u.repo.ListKeys(ctx, repository.NoTX)
}

func (u *configUC) Validate(ctx context.Context) error {
	return u.store.ValidateConfig(ctx)
}
