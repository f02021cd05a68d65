package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/infra/metrics"
	red "school-payments/internal/infra/redis"
)

var _ repository.ServicePricingRepository = (*pricingRepoCacheDecorator)(nil)

const pricingListKey = "pricing:all"

type pricingRepoCacheDecorator struct {
	inner repository.ServicePricingRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewPricingRepoCacheDecorator(inner repository.ServicePricingRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.ServicePricingRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "pricing_cache").Logger()
	return &pricingRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func pricingKey(t model.ServiceType) string { return fmt.Sprintf("pricing:%s", t) }

func (d *pricingRepoCacheDecorator) FindByServiceType(ctx context.Context, tx repository.Tx, t model.ServiceType) (*model.ServicePricing, error) {
	key := pricingKey(t)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var p model.ServicePricing
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("pricing", "hit")
			return &p, nil
		}
	} else if !errors.Is(err, red.ErrCacheMiss) {
		d.log.Warn().Err(err).Str("key", key).Msg("redis get failed")
	}

	metrics.IncCacheRequest("pricing", "miss")
	p, err := d.inner.FindByServiceType(ctx, tx, t)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("redis set failed")
		}
	}
	return p, nil
}

func (d *pricingRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.ServicePricing, error) {
	val, err := d.cache.Get(ctx, pricingListKey)
	if err == nil {
		var list []*model.ServicePricing
		if json.Unmarshal([]byte(val), &list) == nil {
			metrics.IncCacheRequest("pricing_list", "hit")
			return list, nil
		}
	}

	metrics.IncCacheRequest("pricing_list", "miss")
	list, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		if b, err := json.Marshal(list); err == nil {
			_ = d.cache.Set(ctx, pricingListKey, b, d.ttl)
		}
	}
	return list, nil
}

// Save invalidates on both sides of the write so a reader racing the write cannot re-cache the old price.
func (d *pricingRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.ServicePricing) error {
	d.invalidate(ctx, p.ServiceType)
	if err := d.inner.Save(ctx, tx, p); err != nil {
		return err
	}
	d.invalidate(ctx, p.ServiceType)
	return nil
}

func (d *pricingRepoCacheDecorator) invalidate(ctx context.Context, t model.ServiceType) {
	if err := d.cache.Del(ctx, pricingKey(t), pricingListKey); err != nil {
		d.log.Warn().Err(err).Msg("redis del failed")
	}
}
