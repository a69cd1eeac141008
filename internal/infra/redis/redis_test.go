//go:build !integration

package redis

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-smm-shop/internal/domain/model"
)

// memKV is an in-process KV with the same miss semantics as redis.
type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	expires map[string]time.Duration
	failGet error
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, expires: map[string]time.Duration{}}
}

func (m *memKV) Ping(context.Context) error { return nil }
func (m *memKV) Close() error               { return nil }

func (m *memKV) Set(_ context.Context, key string, value interface{}, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	default:
		return errors.New("unsupported value")
	}
	m.expires[key] = exp
	return nil
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return "", m.failGet
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

func (m *memKV) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *memKV) Expire(_ context.Context, key string, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = exp
	return nil
}

func (m *memKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		delete(m.expires, k)
	}
	return nil
}

type countingProvider struct {
	lists  int
	places int
	err    error
}

func (p *countingProvider) Name() string { return "looksmm" }

func (p *countingProvider) ListServices(context.Context) ([]model.ProviderService, error) {
	p.lists++
	if p.err != nil {
		return nil, p.err
	}
	return []model.ProviderService{
		{ID: "101", Name: "Telegram Subscribers", RatePer1000: decimal.RequireFromString("12.5"), Min: 10, Max: 10000},
	}, nil
}

func (p *countingProvider) PlaceOrder(context.Context, string, string, int64) (string, error) {
	p.places++
	return "X1", nil
}

func discard() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	rl := NewRateLimiter(kv)
	key := UserCommandKey(7, "buy")
	assert.Equal(t, "rate_limit:7:buy", key)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "call %d should pass", i+1)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, kv.expires[key])
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("second list is served from cache", func(t *testing.T) {
		kv := newMemKV()
		up := &countingProvider{}
		c := NewCachedProvider(up, kv, 10*time.Minute, discard())

		first, err := c.ListServices(ctx)
		require.NoError(t, err)
		second, err := c.ListServices(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, up.lists)
		require.Len(t, second, 1)
		assert.Equal(t, first[0].ID, second[0].ID)
		assert.True(t, second[0].RatePer1000.Equal(decimal.RequireFromString("12.5")))
		assert.Equal(t, 10*time.Minute, kv.expires["provider:looksmm:services"])
	})

	t.Run("invalidate forces a refetch", func(t *testing.T) {
		kv := newMemKV()
		up := &countingProvider{}
		c := NewCachedProvider(up, kv, time.Minute, discard())

		_, _ = c.ListServices(ctx)
		require.NoError(t, c.Invalidate(ctx))
		_, _ = c.ListServices(ctx)
		assert.Equal(t, 2, up.lists)
	})

	t.Run("cache failure falls through to the provider", func(t *testing.T) {
		kv := newMemKV()
		kv.failGet = errors.New("connection refused")
		up := &countingProvider{}
		c := NewCachedProvider(up, kv, time.Minute, discard())

		out, err := c.ListServices(ctx)
		require.NoError(t, err)
		assert.Len(t, out, 1)
		assert.Equal(t, 1, up.lists)
	})

	t.Run("provider errors are not cached", func(t *testing.T) {
		kv := newMemKV()
		up := &countingProvider{err: errors.New("boom")}
		c := NewCachedProvider(up, kv, time.Minute, discard())

		_, err := c.ListServices(ctx)
		assert.Error(t, err)
		_, ok := kv.data["provider:looksmm:services"]
		assert.False(t, ok)
	})

	t.Run("orders bypass the cache", func(t *testing.T) {
		up := &countingProvider{}
		c := NewCachedProvider(up, newMemKV(), time.Minute, discard())
		id, err := c.PlaceOrder(ctx, "101", "https://t.me/x", 100)
		require.NoError(t, err)
		assert.Equal(t, "X1", id)
		assert.Equal(t, 1, up.places)
	})
}
