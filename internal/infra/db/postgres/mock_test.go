//go:build !integration

package postgres

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
	red "school-payments/internal/infra/redis"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// --- Mocks for Cache Decorator Tests ---

// mockInnerPricingRepo mocks the database repository that the pricing decorator wraps.
type mockInnerPricingRepo struct {
	FindByServiceTypeFunc func(ctx context.Context, tx repository.Tx, t model.ServiceType) (*model.ServicePricing, error)
	ListAllFunc           func(ctx context.Context, tx repository.Tx) ([]*model.ServicePricing, error)
	SaveFunc              func(ctx context.Context, tx repository.Tx, p *model.ServicePricing) error
}

func (m *mockInnerPricingRepo) FindByServiceType(ctx context.Context, tx repository.Tx, t model.ServiceType) (*model.ServicePricing, error) {
	return m.FindByServiceTypeFunc(ctx, tx, t)
}
func (m *mockInnerPricingRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.ServicePricing, error) {
	return m.ListAllFunc(ctx, tx)
}
func (m *mockInnerPricingRepo) Save(ctx context.Context, tx repository.Tx, p *model.ServicePricing) error {
	return m.SaveFunc(ctx, tx, p)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.ErrCacheMiss
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
