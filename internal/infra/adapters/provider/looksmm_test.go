//go:build !integration

package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-smm-shop/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *LookSMMClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewLookSMMClient(srv.URL, "secret", time.Second)
	require.NoError(t, err)
	return c
}

func TestNewLookSMMClientRequiresKey(t *testing.T) {
	_, err := NewLookSMMClient("https://looksmm.ru/api/v2", " ", time.Second)
	assert.Error(t, err)
}

func TestListServices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "services", r.URL.Query().Get("action"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`[
			{"service": 101, "name": "Telegram Subscribers ", "category": "Telegram", "rate": "12.50", "min": "10", "max": 10000},
			{"service": "202", "name": "Views", "price": 0.8, "min": 100, "max": "50000"},
			{"name": "broken entry without id"}
		]`))
	})

	out, err := c.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "101", out[0].ID)
	assert.Equal(t, "Telegram Subscribers", out[0].Name)
	assert.True(t, out[0].RatePer1000.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, int64(10), out[0].Min)
	assert.Equal(t, int64(10000), out[0].Max)

	assert.Equal(t, "202", out[1].ID)
	assert.True(t, out[1].RatePer1000.Equal(decimal.RequireFromString("0.8")), "price is the fallback for rate")
	assert.Equal(t, int64(50000), out[1].Max)
}

func TestListServicesPanelError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Incorrect API key"}`))
	})

	_, err := c.ListServices(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderFailure))
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func TestListServicesHTTPStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.ListServices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
	assert.Contains(t, err.Error(), "http 502")
}

func TestPlaceOrder(t *testing.T) {
	t.Run("returns the upstream id", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "add", q.Get("action"))
			assert.Equal(t, "101", q.Get("service"))
			assert.Equal(t, "https://t.me/channel?x=1&y=2", q.Get("link"))
			assert.Equal(t, "100", q.Get("quantity"))
			_, _ = w.Write([]byte(`{"order": 23501}`))
		})

		id, err := c.PlaceOrder(context.Background(), "101", "https://t.me/channel?x=1&y=2", 100)
		require.NoError(t, err)
		assert.Equal(t, "23501", id)
	})

	t.Run("missing id is a failure", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})

		_, err := c.PlaceOrder(context.Background(), "101", "https://t.me/x", 100)
		assert.ErrorIs(t, err, domain.ErrProviderFailure)
	})

	t.Run("panel error is surfaced", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error": "Not enough funds on balance"}`))
		})

		_, err := c.PlaceOrder(context.Background(), "101", "https://t.me/x", 100)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Not enough funds on balance")
	})

	t.Run("context deadline aborts and hides the key", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := c.PlaceOrder(ctx, "101", "https://t.me/x", 100)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrProviderFailure)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.False(t, strings.Contains(err.Error(), "secret"))
	})
}
