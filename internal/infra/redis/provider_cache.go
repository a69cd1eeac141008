package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/adapter"
	"telegram-smm-shop/internal/infra/metrics"
)

var _ adapter.ProviderClient = (*CachedProvider)(nil)

// CachedProvider keeps the upstream service list in redis for ttl.
// PlaceOrder always goes straight to the provider.
type CachedProvider struct {
	next adapter.ProviderClient
	kv   KV
	ttl  time.Duration
	log  *zerolog.Logger
}

func NewCachedProvider(next adapter.ProviderClient, kv KV, ttl time.Duration, logger *zerolog.Logger) *CachedProvider {
	return &CachedProvider{next: next, kv: kv, ttl: ttl, log: logger}
}

func (c *CachedProvider) Name() string { return c.next.Name() }

func (c *CachedProvider) key() string { return "provider:" + c.next.Name() + ":services" }

func (c *CachedProvider) ListServices(ctx context.Context) ([]model.ProviderService, error) {
	raw, err := c.kv.Get(ctx, c.key())
	switch {
	case err == nil:
		var out []model.ProviderService
		if jerr := json.Unmarshal([]byte(raw), &out); jerr == nil {
			metrics.IncCacheRequest("provider_services", "hit")
			return out, nil
		}
		c.log.Warn().Str("key", c.key()).Msg("discarding undecodable services cache entry")
	case errors.Is(err, ErrMiss):
	default:
		c.log.Warn().Err(err).Msg("services cache read failed")
	}
	metrics.IncCacheRequest("provider_services", "miss")

	services, err := c.next.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(services); jerr == nil {
		if serr := c.kv.Set(ctx, c.key(), b, c.ttl); serr != nil {
			c.log.Warn().Err(serr).Msg("services cache write failed")
		}
	}
	return services, nil
}

func (c *CachedProvider) PlaceOrder(ctx context.Context, serviceID, link string, quantity int64) (string, error) {
	return c.next.PlaceOrder(ctx, serviceID, link, quantity)
}

// Invalidate drops the cached list; the next ListServices refetches.
func (c *CachedProvider) Invalidate(ctx context.Context) error {
	return c.kv.Del(ctx, c.key())
}
