package repository

import (
	"context"
	"time"

	"school-payments/internal/domain/model"
)

type ConfigRepository interface {
	Find(ctx context.Context, tx Tx, key string) (*model.ConfigEntry, error)
	Upsert(ctx context.Context, tx Tx, e *model.ConfigEntry) error
	TouchAccess(ctx context.Context, tx Tx, key string, at time.Time) error
	ListKeys(ctx context.Context, tx Tx) ([]string, error)
}
